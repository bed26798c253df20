package objstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/minios-linux/doclate/store/storetest"
)

func TestNewValidatesConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"endpoint", Config{AccessKey: "a", SecretKey: "b", Bucket: "c"}, "endpoint"},
		{"keys", Config{Endpoint: "localhost:9000", Bucket: "c"}, "access key"},
		{"bucket", Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, "bucket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestObjectName(t *testing.T) {
	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "c", Prefix: "/team/"})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.ObjectName("translation-cache:v1:ab"); got != "team/translation-cache/v1/ab.json" {
		t.Fatalf("ObjectName = %q", got)
	}
}

func TestStoreContract(t *testing.T) {
	endpoint := os.Getenv("DOCLATE_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("DOCLATE_TEST_MINIO_ENDPOINT not set")
	}
	s, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("DOCLATE_TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("DOCLATE_TEST_MINIO_SECRET_KEY"),
		Bucket:    "doclate-test",
		Prefix:    "storetest",
	})
	if err != nil {
		t.Fatal(err)
	}
	storetest.Run(t, s)
}

type fakeBuckets struct {
	existsErrs []error
	exists     bool
	checks     int
	made       int
}

func (f *fakeBuckets) BucketExists(ctx context.Context, name string) (bool, error) {
	f.checks++
	if len(f.existsErrs) > 0 {
		err := f.existsErrs[0]
		f.existsErrs = f.existsErrs[1:]
		return false, err
	}
	return f.exists, nil
}

func (f *fakeBuckets) MakeBucket(ctx context.Context, name string, opts minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}

func TestEnsureBucketRetriesAfterFailure(t *testing.T) {
	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "c"})
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeBuckets{existsErrs: []error{context.Canceled}}
	s.buckets = fake

	if err := s.ensureBucket(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("first ensureBucket err = %v", err)
	}
	if err := s.ensureBucket(context.Background()); err != nil {
		t.Fatalf("retry err = %v", err)
	}
	if fake.made != 1 {
		t.Fatalf("MakeBucket calls = %d, want 1", fake.made)
	}
	if err := s.ensureBucket(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.checks != 2 {
		t.Fatalf("BucketExists calls = %d, want 2", fake.checks)
	}
}

func TestReadsDoNotCreateBucket(t *testing.T) {
	s, err := New(Config{Endpoint: "127.0.0.1:1", AccessKey: "a", SecretKey: "b", Bucket: "c"})
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeBuckets{}
	s.buckets = fake

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, _ = s.Get(ctx, "translation-cache:v1:ab")
	_, _ = s.Reset(ctx, "translation-cache:v1:ab")
	if fake.checks != 0 || fake.made != 0 {
		t.Fatalf("read path touched the bucket: checks=%d made=%d", fake.checks, fake.made)
	}
}
