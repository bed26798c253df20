package translate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/minios-linux/doclate/backend"
	"github.com/minios-linux/doclate/cache"
	"github.com/minios-linux/doclate/content"
	"github.com/minios-linux/doclate/schema"
	"github.com/minios-linux/doclate/store/memstore"
)

const pageType = "api::page.page"

// fakeBackend prefixes every text with the target locale.
type fakeBackend struct {
	mu     sync.Mutex
	calls  int
	sizes  []int
	failOn int    // 1-based call number that fails, 0 = never
	err    error  // error returned by the failing call
	drop   string // text whose translation is withheld
}

func (f *fakeBackend) Name() string     { return "fake" }
func (f *fakeBackend) Model() string    { return "fake-1" }
func (f *fakeBackend) Endpoint() string { return "mem://fake" }

func (f *fakeBackend) TranslateBatch(ctx context.Context, req backend.Request) (map[string]string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.sizes = append(f.sizes, len(req.Items))
	f.mu.Unlock()

	if f.failOn == call {
		return nil, f.err
	}
	out := make(map[string]string, len(req.Items))
	for _, it := range req.Items {
		if it.Text == f.drop {
			continue
		}
		out[it.ID] = "[" + req.TargetLocale + "] " + it.Text
	}
	return out, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memSource serves documents from a map keyed by "type/id/locale".
type memSource map[string]map[string]any

func (m memSource) FetchLocalized(_ context.Context, typeID, documentID, locale string, _ map[string]any) (map[string]any, error) {
	doc, ok := m[typeID+"/"+documentID+"/"+locale]
	if !ok {
		return nil, content.ErrNotFound
	}
	return doc, nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (map[string]string, bool, error) {
	return nil, false, errors.New("store down")
}

func (failingStore) Update(context.Context, string, func(map[string]string)) error {
	return errors.New("store down")
}

func (failingStore) Reset(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat := schema.NewCatalog()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(cat.AddComponent("shared.line", &schema.Schema{Attributes: []schema.Attribute{
		{Name: "text", Type: schema.KindString},
		{Name: "icon", Type: schema.KindMedia},
	}}))
	must(cat.AddType(&schema.Schema{UID: pageType, Localized: true, Attributes: []schema.Attribute{
		{Name: "title", Type: schema.KindString, Localized: true},
		{Name: "slug", Type: schema.KindUID},
		{Name: "lines", Type: schema.KindComponent, Component: "shared.line", Repeatable: true, Localized: true},
		{Name: "cover", Type: schema.KindMedia},
	}}))
	must(cat.AddType(&schema.Schema{UID: "api::setting.setting", Attributes: []schema.Attribute{
		{Name: "title", Type: schema.KindString},
	}}))
	return cat
}

// pageDoc returns a page with a title and n lines: n+1 segments.
func pageDoc(n int) map[string]any {
	lines := make([]any, n)
	for i := range lines {
		lines[i] = map[string]any{"id": i + 100, "text": "line " + strconv.Itoa(i), "icon": map[string]any{"id": 7}}
	}
	return map[string]any{
		"id":    1,
		"title": "Welcome",
		"slug":  "welcome",
		"lines": lines,
		"cover": map[string]any{"id": 42, "url": "/cover.png"},
	}
}

func newService(t *testing.T, src memSource, be backend.Backend, store cache.Store, opts Options) *Service {
	t.Helper()
	var c *cache.Cache
	if store != nil {
		c = cache.New(store, cache.DefaultVersion)
	}
	return New(testCatalog(t), src, be, c, opts)
}

func pageRequest() Request {
	return Request{TypeID: pageType, DocumentID: "home", SourceLocale: "en", TargetLocale: "de"}
}

func TestTranslateDocument(t *testing.T) {
	be := &fakeBackend{}
	src := memSource{pageType + "/home/en": pageDoc(2)}
	svc := newService(t, src, be, memstore.New(), Options{})

	res, err := svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatalf("TranslateDocument: %v", err)
	}
	if !res.Done || res.Progress.Total != 3 || res.Progress.Remaining != 0 || res.Progress.RemainingChunks != 0 {
		t.Fatalf("progress = %+v done=%v", res.Progress, res.Done)
	}
	if res.Cache.Hits != 0 || res.Cache.Writes != 3 {
		t.Fatalf("cache = %+v", res.Cache)
	}

	doc := res.Document
	if doc["title"] != "[de] Welcome" {
		t.Fatalf("title = %v", doc["title"])
	}
	if _, ok := doc["slug"]; ok {
		t.Fatal("non-localized slug must not be in the output")
	}
	if _, ok := doc["id"]; ok {
		t.Fatal("top-level id must not be in the output")
	}
	line := doc["lines"].([]any)[1].(map[string]any)
	if line["text"] != "[de] line 1" {
		t.Fatalf("line text = %v", line["text"])
	}
	if _, ok := line["id"]; ok {
		t.Fatal("component id must be stripped")
	}
	if line["icon"].(map[string]any)["id"] != 7 {
		t.Fatal("media id inside a component must be kept")
	}
	if doc["cover"].(map[string]any)["url"] != "/cover.png" {
		t.Fatalf("cover = %v", doc["cover"])
	}
	if src[pageType+"/home/en"]["title"] != "Welcome" {
		t.Fatal("source document was modified")
	}

	again, err := svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if be.callCount() != 1 || again.Cache.Hits != 3 || again.Cache.Writes != 0 {
		t.Fatalf("second run: backend calls = %d, cache = %+v", be.callCount(), again.Cache)
	}
}

func TestTranslateDocumentProgressResumes(t *testing.T) {
	be := &fakeBackend{}
	src := memSource{pageType + "/home/en": pageDoc(5)} // 6 segments
	svc := newService(t, src, be, memstore.New(), Options{MaxSegments: 2})
	ctx := context.Background()

	res, err := svc.TranslateDocumentProgress(ctx, pageRequest(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Done || res.Progress.RemainingChunks != 2 || res.Progress.Translated != 2 || res.Progress.Remaining != 4 {
		t.Fatalf("call 1: done=%v progress=%+v", res.Done, res.Progress)
	}
	if res.Document["title"] != "[de] Welcome" {
		t.Fatalf("call 1 title = %v", res.Document["title"])
	}
	lines := res.Document["lines"].([]any)
	if lines[4].(map[string]any)["text"] != "line 4" {
		t.Fatal("untranslated segments must keep their source text")
	}

	res, err = svc.TranslateDocumentProgress(ctx, pageRequest(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Done || res.Progress.RemainingChunks != 1 || res.Cache.Hits != 2 {
		t.Fatalf("call 2: done=%v progress=%+v cache=%+v", res.Done, res.Progress, res.Cache)
	}

	res, err = svc.TranslateDocumentProgress(ctx, pageRequest(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Progress.Remaining != 0 || res.Progress.RemainingChunks != 0 || res.Progress.Translated != 6 {
		t.Fatalf("call 3: done=%v progress=%+v", res.Done, res.Progress)
	}
	if be.callCount() != 3 {
		t.Fatalf("backend calls = %d, want 3", be.callCount())
	}
	for i, n := range be.sizes {
		if n != 2 {
			t.Fatalf("call %d sent %d segments, want 2", i, n)
		}
	}
}

func TestPreconditions(t *testing.T) {
	be := &fakeBackend{}
	src := memSource{
		pageType + "/home/en":           pageDoc(1),
		"api::setting.setting/main/en": {"title": "x"},
	}
	store := memstore.New()
	svc := newService(t, src, be, store, Options{})

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"missing target", Request{TypeID: pageType, DocumentID: "home", SourceLocale: "en"}, ErrPrecondition},
		{"missing document", Request{TypeID: pageType, SourceLocale: "en", TargetLocale: "de"}, ErrPrecondition},
		{"equal locales", Request{TypeID: pageType, DocumentID: "home", SourceLocale: "en", TargetLocale: "EN"}, ErrPrecondition},
		{"unknown type", Request{TypeID: "api::nope.nope", DocumentID: "home", SourceLocale: "en", TargetLocale: "de"}, ErrPrecondition},
		{"not localized", Request{TypeID: "api::setting.setting", DocumentID: "main", SourceLocale: "en", TargetLocale: "de"}, ErrPrecondition},
		{"no such document", Request{TypeID: pageType, DocumentID: "gone", SourceLocale: "en", TargetLocale: "de"}, ErrNotFound},
		{"no such locale", Request{TypeID: pageType, DocumentID: "home", SourceLocale: "fr", TargetLocale: "de"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.TranslateDocumentProgress(context.Background(), tc.req, 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if res != nil {
				t.Fatal("no result expected on a precondition failure")
			}
			if IsRetryable(err) {
				t.Fatal("precondition errors are not retryable")
			}
		})
	}
	if be.callCount() != 0 || len(store.Keys()) != 0 {
		t.Fatalf("side effects: backend calls = %d, buckets = %d", be.callCount(), len(store.Keys()))
	}
}

func TestZeroSegments(t *testing.T) {
	be := &fakeBackend{}
	doc := map[string]any{"title": "   ", "lines": []any{map[string]any{"id": 5, "text": ""}}}
	svc := newService(t, memSource{pageType + "/home/en": doc}, be, memstore.New(), Options{})

	res, err := svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Progress != (Progress{}) || be.callCount() != 0 {
		t.Fatalf("done=%v progress=%+v calls=%d", res.Done, res.Progress, be.callCount())
	}
	if _, ok := res.Document["lines"].([]any)[0].(map[string]any)["id"]; ok {
		t.Fatal("document must still be sanitized")
	}
}

func TestChunkFailureKeepsEarlierChunks(t *testing.T) {
	be := &fakeBackend{failOn: 2, err: fmt.Errorf("%w: no json", backend.ErrMalformedOutput)}
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(5)}, be, memstore.New(), Options{MaxSegments: 2})

	res, err := svc.TranslateDocument(context.Background(), pageRequest())
	if !errors.Is(err, backend.ErrMalformedOutput) || !IsRetryable(err) {
		t.Fatalf("err = %v", err)
	}
	if res == nil || res.Progress.Translated != 2 || res.Done {
		t.Fatalf("res = %+v", res)
	}
	if be.callCount() != 2 {
		t.Fatalf("backend calls = %d, want 2 (stop after the failed chunk)", be.callCount())
	}

	res, err = svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Cache.Hits != 2 {
		t.Fatalf("retry: done=%v cache=%+v", res.Done, res.Cache)
	}
}

func TestAuthErrorIsNotRetryable(t *testing.T) {
	be := &fakeBackend{failOn: 1, err: fmt.Errorf("%w: bad key", backend.ErrAuth)}
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(1)}, be, nil, Options{})

	_, err := svc.TranslateDocument(context.Background(), pageRequest())
	if !errors.Is(err, backend.ErrAuth) || IsRetryable(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestCacheFailureDegrades(t *testing.T) {
	var reported []string
	be := &fakeBackend{}
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(2)}, be, failingStore{}, Options{
		OnError: func(format string, args ...any) { reported = append(reported, fmt.Sprintf(format, args...)) },
	})

	res, err := svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatalf("cache failure must not fail the call: %v", err)
	}
	if !res.Done || res.Cache.Writes != 0 || res.Cache.Hits != 0 {
		t.Fatalf("res = %+v", res)
	}
	if len(reported) != 1 || !strings.Contains(reported[0], "store down") {
		t.Fatalf("reported = %v", reported)
	}
}

func TestMissingTranslationStaysPending(t *testing.T) {
	be := &fakeBackend{drop: "line 0"}
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(2)}, be, memstore.New(), Options{})

	res, err := svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Done || res.Progress.Remaining != 1 || res.Progress.RemainingChunks != 1 {
		t.Fatalf("done=%v progress=%+v", res.Done, res.Progress)
	}
	if res.Document["lines"].([]any)[0].(map[string]any)["text"] != "line 0" {
		t.Fatal("dropped segment must keep its source text")
	}
}

func TestParallelChunks(t *testing.T) {
	be := &fakeBackend{}
	var progress []int
	var mu sync.Mutex
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(9)}, be, memstore.New(), Options{
		MaxSegments: 2,
		Concurrency: 3,
		OnProgress: func(done, total int) {
			mu.Lock()
			progress = append(progress, done)
			mu.Unlock()
		},
	})

	res, err := svc.TranslateDocument(context.Background(), pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Progress.Translated != 10 || be.callCount() != 5 || res.Cache.Writes != 10 {
		t.Fatalf("res = %+v, calls = %d", res, be.callCount())
	}
	if len(progress) != 5 || progress[4] != 10 {
		t.Fatalf("progress callbacks = %v", progress)
	}
}

func TestCancellationBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	be := &fakeBackend{}
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(5)}, be, memstore.New(), Options{
		MaxSegments: 2,
		OnProgress:  func(done, total int) { cancel() },
	})

	res, err := svc.TranslateDocument(ctx, pageRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if be.callCount() != 1 || res.Progress.Translated != 2 || res.Cache.Writes != 2 {
		t.Fatalf("calls = %d, res = %+v", be.callCount(), res)
	}
}

func TestInstructionsArePartOfTheCacheKey(t *testing.T) {
	be := &fakeBackend{}
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(1)}, be, memstore.New(), Options{})
	ctx := context.Background()

	if _, err := svc.TranslateDocument(ctx, pageRequest()); err != nil {
		t.Fatal(err)
	}
	req := pageRequest()
	req.Instructions = "Use formal register."
	res, err := svc.TranslateDocument(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cache.Hits != 0 || be.callCount() != 2 {
		t.Fatalf("hits = %d, calls = %d", res.Cache.Hits, be.callCount())
	}
}

func TestClearCache(t *testing.T) {
	store := memstore.New()
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(1)}, &fakeBackend{}, store, Options{})
	ctx := context.Background()
	if _, err := svc.TranslateDocument(ctx, pageRequest()); err != nil {
		t.Fatal(err)
	}

	res, err := svc.ClearCache(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.ClearedBuckets == 0 || len(res.ClearedVersions) != 1 || res.ClearedVersions[0] != cache.DefaultVersion {
		t.Fatalf("res = %+v", res)
	}
	again, err := svc.TranslateDocument(ctx, pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if again.Cache.Hits != 0 {
		t.Fatalf("hits after clear = %d", again.Cache.Hits)
	}

	noCache := newService(t, memSource{}, &fakeBackend{}, nil, Options{})
	if res, err := noCache.ClearCache(ctx, true); err != nil || res.ClearedBuckets != 0 {
		t.Fatalf("no cache: %+v, %v", res, err)
	}
}

func TestSegmentsAndPing(t *testing.T) {
	svc := newService(t, memSource{pageType + "/home/en": pageDoc(2)}, &fakeBackend{}, nil, Options{})
	segs, err := svc.Segments(context.Background(), pageRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 3 || segs[0].Path.String() != "title" || segs[2].Path.String() != "lines.1.text" {
		t.Fatalf("segs = %+v", segs)
	}
	if svc.Ping() != "pong" {
		t.Fatal("unexpected ping answer")
	}
}
