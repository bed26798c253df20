// Package storetest holds the behavior every cache.Store must share.
// Store packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/minios-linux/doclate/cache"
)

// Run exercises s against the Store contract. Keys are namespaced with
// t.Name() so shared external stores can be reused between runs.
func Run(t *testing.T, s cache.Store) {
	t.Helper()
	ctx := context.Background()
	ns := func(k string) string { return fmt.Sprintf("storetest:%s:%s", t.Name(), k) }

	t.Run("missing bucket", func(t *testing.T) {
		b, ok, err := s.Get(ctx, ns("missing"))
		if err != nil || ok || len(b) != 0 {
			t.Fatalf("Get(missing) = %v, %v, %v", b, ok, err)
		}
	})

	t.Run("update then get", func(t *testing.T) {
		key := ns("roundtrip")
		if err := s.Update(ctx, key, func(b map[string]string) { b["a"] = "1" }); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if err := s.Update(ctx, key, func(b map[string]string) {
			if b["a"] != "1" {
				t.Errorf("second Update saw %v", b)
			}
			b["b"] = "2"
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		b, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get = %v, %v", ok, err)
		}
		if b["a"] != "1" || b["b"] != "2" {
			t.Fatalf("bucket = %v", b)
		}
	})

	t.Run("reset never creates", func(t *testing.T) {
		key := ns("absent")
		cleared, err := s.Reset(ctx, key)
		if err != nil || cleared {
			t.Fatalf("Reset(absent) = %v, %v", cleared, err)
		}
		if _, ok, _ := s.Get(ctx, key); ok {
			t.Fatal("Reset created a bucket")
		}
	})

	t.Run("reset clears data once", func(t *testing.T) {
		key := ns("reset")
		if err := s.Update(ctx, key, func(b map[string]string) { b["x"] = "y" }); err != nil {
			t.Fatalf("Update: %v", err)
		}
		cleared, err := s.Reset(ctx, key)
		if err != nil || !cleared {
			t.Fatalf("Reset = %v, %v", cleared, err)
		}
		b, _, err := s.Get(ctx, key)
		if err != nil || len(b) != 0 {
			t.Fatalf("after Reset bucket = %v, %v", b, err)
		}
		cleared, err = s.Reset(ctx, key)
		if err != nil || cleared {
			t.Fatalf("second Reset = %v, %v", cleared, err)
		}
	})

	t.Run("concurrent updates keep every write", func(t *testing.T) {
		key := ns("concurrent")
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, key, func(b map[string]string) {
					b[fmt.Sprintf("k%02d", i)] = "v"
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
		b, _, err := s.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if len(b) != n {
			t.Fatalf("bucket has %d keys, want %d", len(b), n)
		}
	})
}
