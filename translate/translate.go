// Package translate drives document translation: it walks a document into
// segments, resolves what it can from the translation cache, sends the
// rest to a backend in bounded chunks and merges the results back.
//
// Every call recomputes its work list from the source document, so a
// caller can translate a large document incrementally by calling
// TranslateDocumentProgress with a small chunk budget until Done is set.
// Progress between calls lives only in the cache.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minios-linux/doclate/backend"
	"github.com/minios-linux/doclate/cache"
	"github.com/minios-linux/doclate/content"
	"github.com/minios-linux/doclate/docpath"
	"github.com/minios-linux/doclate/extract"
	"github.com/minios-linux/doclate/langmeta"
	"github.com/minios-linux/doclate/merge"
	"github.com/minios-linux/doclate/sanitize"
	"github.com/minios-linux/doclate/schema"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrPrecondition covers invalid requests: missing identifiers,
	// missing or equal locales, unknown or non-localized types.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound means the source document or locale does not exist.
	ErrNotFound = errors.New("not found")
)

// IsRetryable reports whether calling again may succeed without any
// change on the caller's side.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPrecondition), errors.Is(err, ErrNotFound), errors.Is(err, backend.ErrAuth):
		return false
	case errors.Is(err, backend.ErrTransport), errors.Is(err, backend.ErrTimeout),
		errors.Is(err, backend.ErrRateLimited), errors.Is(err, backend.ErrMalformedOutput):
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

const (
	DefaultMaxSegments = 40
	DefaultMaxChars    = 6000
)

// Options controls the translation behavior.
type Options struct {
	// MaxSegments is the most segments sent in one backend call.
	MaxSegments int
	// MaxChars bounds the characters sent in one backend call.
	MaxChars int
	// Concurrency is how many chunks may be in flight at once. Default: 1.
	Concurrency int
	// RequestDelay is the delay between launching parallel chunks.
	RequestDelay time.Duration
	// Timeout bounds each backend call. Default: 120s.
	Timeout time.Duration
	// OnProgress is called after each chunk with the number of resolved
	// segments and the total.
	OnProgress func(done, total int)
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
	// OnError emits error messages during translation.
	OnError func(format string, args ...any)
	// Verbose enables detailed logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) debug(format string, args ...any) {
	if o.Verbose {
		o.log(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveMaxSegments() int {
	if o.MaxSegments > 0 {
		return o.MaxSegments
	}
	return DefaultMaxSegments
}

func (o *Options) effectiveMaxChars() int {
	if o.MaxChars > 0 {
		return o.MaxChars
	}
	return DefaultMaxChars
}

func (o *Options) effectiveConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return 1
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 120 * time.Second
}

// ---------------------------------------------------------------------------
// Requests and results
// ---------------------------------------------------------------------------

// Request identifies one document translation.
type Request struct {
	TypeID       string
	DocumentID   string
	SourceLocale string
	TargetLocale string
	// Instructions are appended to the prompt and are part of the cache key.
	Instructions string
	// IncludeJSON also translates strings inside json attributes.
	IncludeJSON bool
}

// Progress counts segments for one call.
type Progress struct {
	Total           int `json:"total"`
	Translated      int `json:"translated"`
	Remaining       int `json:"remaining"`
	RemainingChunks int `json:"remainingChunks"`
}

// CacheStats counts cache traffic for one call.
type CacheStats struct {
	Hits   int `json:"hits"`
	Writes int `json:"writes"`
}

// Result is the outcome of a translation call.
type Result struct {
	Document map[string]any `json:"document"`
	Done     bool           `json:"done"`
	Progress Progress       `json:"progress"`
	Cache    CacheStats     `json:"cache"`
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service translates documents. It holds no per-document state, so one
// Service may serve concurrent calls.
type Service struct {
	schemas schema.Registry
	source  content.Source
	backend backend.Backend
	cache   *cache.Cache
	opts    Options
}

// New returns a Service. c may be nil to translate without a cache.
func New(schemas schema.Registry, source content.Source, be backend.Backend, c *cache.Cache, opts Options) *Service {
	return &Service{schemas: schemas, source: source, backend: be, cache: c, opts: opts}
}

// Ping is the liveness check.
func (s *Service) Ping() string {
	return "pong"
}

// ClearCache empties the cache at its current version, and at every
// older version when includeOlder is set.
func (s *Service) ClearCache(ctx context.Context, includeOlder bool) (cache.ClearResult, error) {
	if s.cache == nil {
		return cache.ClearResult{ClearedVersions: []int{}}, nil
	}
	return s.cache.Clear(ctx, includeOlder)
}

// Segments returns the segments a translation of req would work on,
// without touching the cache or the backend.
func (s *Service) Segments(ctx context.Context, req Request) ([]extract.Segment, error) {
	j, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return j.segs, nil
}

// TranslateDocument translates every pending segment in one call.
func (s *Service) TranslateDocument(ctx context.Context, req Request) (*Result, error) {
	return s.TranslateDocumentProgress(ctx, req, 0)
}

// TranslateDocumentProgress translates at most maxChunks chunks of the
// pending segments (all of them when maxChunks <= 0) and reports how much
// is left. Translations are written to the cache as each chunk finishes,
// so the next call resumes where this one stopped.
//
// When a chunk fails, the error is returned together with a Result that
// reflects the chunks that did succeed.
func (s *Service) TranslateDocumentProgress(ctx context.Context, req Request, maxChunks int) (*Result, error) {
	j, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(j.segs) == 0 {
		return s.finish(j), nil
	}

	s.resolveFromCache(ctx, j)

	pending := j.pending()
	chunks := Chunk(pending, s.opts.effectiveMaxSegments(), s.opts.effectiveMaxChars())
	if maxChunks > 0 && len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}
	s.opts.debug("%s/%s: %d segments, %d cached, %d pending, processing %d chunk(s)",
		req.TypeID, req.DocumentID, len(j.segs), j.stats.Hits, len(pending), len(chunks))

	runErr := runParallelGeneric(ctx, chunks, s.opts.effectiveConcurrency(), s.opts.RequestDelay,
		func(ctx context.Context, chunk []extract.Segment) error {
			return s.translateChunk(ctx, j, chunk)
		})

	res := s.finish(j)
	if runErr != nil {
		return res, fmt.Errorf("translating %s/%s to %s: %w", req.TypeID, req.DocumentID, req.TargetLocale, runErr)
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Job
// ---------------------------------------------------------------------------

// job is the state of one call. It is rebuilt from the source document
// every time and discarded when the call returns.
type job struct {
	req    Request
	schema *schema.Schema
	source map[string]any
	local  map[string]any
	segs   []extract.Segment
	hashes map[string]string // segment id -> cache hash

	mu       sync.Mutex
	resolved map[string]string // segment id -> translation
	stats    CacheStats
	cache    *cache.Cache // nil once a store failure disabled caching
}

func (j *job) pending() []extract.Segment {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []extract.Segment
	for _, seg := range j.segs {
		if _, ok := j.resolved[seg.ID]; !ok {
			out = append(out, seg)
		}
	}
	return out
}

func validate(req Request) error {
	var missing []string
	if strings.TrimSpace(req.TypeID) == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		missing = append(missing, "document id")
	}
	if strings.TrimSpace(req.SourceLocale) == "" {
		missing = append(missing, "source locale")
	}
	if strings.TrimSpace(req.TargetLocale) == "" {
		missing = append(missing, "target locale")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrPrecondition, strings.Join(missing, ", "))
	}
	if langmeta.Canonical(req.SourceLocale) == langmeta.Canonical(req.TargetLocale) {
		return fmt.Errorf("%w: source and target locale are both %q", ErrPrecondition, req.SourceLocale)
	}
	return nil
}

// prepare validates req, fetches the source document and walks it.
func (s *Service) prepare(ctx context.Context, req Request) (*job, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	sch, ok := s.schemas.Schema(req.TypeID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrPrecondition, req.TypeID)
	}
	if !sch.Localized {
		return nil, fmt.Errorf("%w: localization is not enabled on %q", ErrPrecondition, req.TypeID)
	}

	doc, err := s.source.FetchLocalized(ctx, req.TypeID, req.DocumentID, req.SourceLocale, schema.Populate(sch, s.schemas))
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("fetching %s/%s (%s): %w", req.TypeID, req.DocumentID, req.SourceLocale, err)
	}

	local := content.PickLocalized(sch, doc)
	j := &job{
		req:      req,
		schema:   sch,
		source:   doc,
		local:    local,
		segs:     extract.Walk(sch, s.schemas, local, extract.Options{IncludeJSON: req.IncludeJSON}),
		resolved: make(map[string]string),
		cache:    s.cache,
	}
	return j, nil
}

func (s *Service) cacheKey(req Request, text string) cache.Key {
	return cache.Key{
		Backend:      s.backend.Name(),
		Model:        s.backend.Model(),
		Endpoint:     s.backend.Endpoint(),
		SourceLocale: req.SourceLocale,
		TargetLocale: req.TargetLocale,
		Instructions: req.Instructions,
		Text:         text,
	}
}

// disableCache turns caching off for the rest of the call.
func (s *Service) disableCache(j *job, err error) {
	s.opts.logError("Translation cache unavailable, continuing without it: %v", err)
	j.cache = nil
}

func (s *Service) resolveFromCache(ctx context.Context, j *job) {
	if j.cache == nil {
		return
	}
	j.hashes = make(map[string]string, len(j.segs))
	hashes := make([]string, 0, len(j.segs))
	for _, seg := range j.segs {
		h := j.cache.Hash(s.cacheKey(j.req, seg.Text))
		j.hashes[seg.ID] = h
		hashes = append(hashes, h)
	}

	found, err := j.cache.Get(ctx, hashes)
	if err != nil {
		s.disableCache(j, err)
		return
	}
	for _, seg := range j.segs {
		if text, ok := found[j.hashes[seg.ID]]; ok {
			j.resolved[seg.ID] = text
			j.stats.Hits++
		}
	}
}

// translateChunk sends one chunk to the backend and records the result.
// The backend call runs detached from ctx cancellation and is bounded by
// the per-call timeout instead.
func (s *Service) translateChunk(ctx context.Context, j *job, chunk []extract.Segment) error {
	items := make([]backend.Item, len(chunk))
	for i, seg := range chunk {
		items[i] = backend.Item{ID: seg.ID, Text: seg.Text}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.effectiveTimeout())
	defer cancel()
	out, err := s.backend.TranslateBatch(callCtx, backend.Request{
		Items:        items,
		SourceLocale: j.req.SourceLocale,
		TargetLocale: j.req.TargetLocale,
		Instructions: j.req.Instructions,
	})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entries := make(map[string]string, len(out))
	for _, seg := range chunk {
		text, ok := out[seg.ID]
		if !ok || text == "" {
			continue
		}
		j.resolved[seg.ID] = text
		if j.cache != nil {
			entries[j.hashes[seg.ID]] = text
		}
	}
	if missing := len(chunk) - countResolved(j.resolved, chunk); missing > 0 {
		s.opts.log("%s/%s: backend returned no translation for %d of %d segment(s)",
			j.req.TypeID, j.req.DocumentID, missing, len(chunk))
	}

	if j.cache != nil && len(entries) > 0 {
		written, err := j.cache.Set(context.WithoutCancel(ctx), entries)
		j.stats.Writes += written
		if err != nil {
			s.disableCache(j, err)
		}
	}

	if s.opts.OnProgress != nil {
		s.opts.OnProgress(len(j.resolved), len(j.segs))
	}
	return nil
}

func countResolved(resolved map[string]string, chunk []extract.Segment) int {
	n := 0
	for _, seg := range chunk {
		if _, ok := resolved[seg.ID]; ok {
			n++
		}
	}
	return n
}

// finish merges the resolved translations into the localized document,
// strips identities and puts back the passthrough fields.
func (s *Service) finish(j *job) *Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	merged, dropped := merge.ApplyReport(j.local, j.segs, j.resolved)
	for _, seg := range dropped {
		s.opts.log("Skipping %s: its parent no longer exists", seg.Path)
	}
	doc := sanitize.Strip(j.schema, s.schemas, merged)

	// Top-level media fields the localized subset does not carry are
	// copied from the source untouched.
	for _, attr := range j.schema.Attributes {
		if attr.Type != schema.KindMedia {
			continue
		}
		if _, ok := doc[attr.Name]; ok {
			continue
		}
		if v, ok := j.source[attr.Name]; ok {
			doc[attr.Name] = docpath.Clone(v)
		}
	}

	var remaining []extract.Segment
	for _, seg := range j.segs {
		if _, ok := j.resolved[seg.ID]; !ok {
			remaining = append(remaining, seg)
		}
	}
	return &Result{
		Document: doc,
		Done:     len(remaining) == 0,
		Progress: Progress{
			Total:           len(j.segs),
			Translated:      len(j.segs) - len(remaining),
			Remaining:       len(remaining),
			RemainingChunks: len(Chunk(remaining, s.opts.effectiveMaxSegments(), s.opts.effectiveMaxChars())),
		},
		Cache: j.stats,
	}
}
