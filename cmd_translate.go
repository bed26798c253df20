package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/doclate/config"
	"github.com/minios-linux/doclate/i18n"
	"github.com/minios-linux/doclate/schema"
	"github.com/minios-linux/doclate/translate"
)

// ---------------------------------------------------------------------------
// Shared document flags
// ---------------------------------------------------------------------------

type docFlags struct {
	from         string
	to           string
	instructions string
	includeJSON  bool
	save         bool
}

func (f *docFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Source locale (default: source_locale from config)")
	cmd.Flags().StringVarP(&f.to, "to", "t", "", "Target locales, comma-separated (e.g. de,fr,pt-BR)")
	cmd.Flags().StringVar(&f.instructions, "instructions", "", "Extra instructions for the backend")
	cmd.Flags().BoolVar(&f.includeJSON, "include-json", false, "Also translate strings inside json attributes")
	cmd.Flags().BoolVar(&f.save, "save", false, "Write finished translations to the content directory")
	_ = cmd.MarkFlagRequired("to")
}

// requests expands the flags into one request per target locale.
func (f *docFlags) requests(cfg *config.Config, typeID, docID string) ([]translate.Request, error) {
	locales := splitList(f.to)
	if len(locales) == 0 {
		return nil, errors.New(i18n.T("no target locale given, use --to"))
	}
	from := f.from
	if from == "" {
		from = cfg.SourceLocale
	}
	instr := f.instructions
	if instr == "" {
		instr = cfg.Instructions
	}
	reqs := make([]translate.Request, 0, len(locales))
	for _, loc := range locales {
		reqs = append(reqs, translate.Request{
			TypeID:       typeID,
			DocumentID:   docID,
			SourceLocale: from,
			TargetLocale: loc,
			Instructions: instr,
			IncludeJSON:  f.includeJSON,
		})
	}
	return reqs, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Output helpers
// ---------------------------------------------------------------------------

// writeJSON prints v indented, without HTML escaping.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportResult logs a one-line summary of a translation call.
func reportResult(req translate.Request, res *translate.Result) {
	p := res.Progress
	if res.Done {
		logSuccess("%s/%s -> %s: %d segments (%d from cache, %d new)",
			req.TypeID, req.DocumentID, req.TargetLocale, p.Total, res.Cache.Hits, res.Cache.Writes)
		return
	}
	logInfo("%s/%s -> %s: %d/%d segments, %d remaining in %d chunk(s)",
		req.TypeID, req.DocumentID, req.TargetLocale, p.Translated, p.Total, p.Remaining, p.RemainingChunks)
}

// deliver saves a finished document or prints it. Unfinished documents
// are never saved: their pending segments still hold source text.
func deliver(ctx context.Context, a *app, req translate.Request, res *translate.Result, save bool, out io.Writer) error {
	if save {
		if !res.Done {
			logWarning("%s/%s -> %s: %s", req.TypeID, req.DocumentID, req.TargetLocale, i18n.T("not saved, translation is incomplete"))
			return nil
		}
		if err := a.docs.Save(ctx, req.TypeID, req.DocumentID, req.TargetLocale, res.Document); err != nil {
			return fmt.Errorf("saving %s/%s (%s): %w", req.TypeID, req.DocumentID, req.TargetLocale, err)
		}
		return nil
	}
	return writeJSON(out, res)
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

func newTranslateCmd(c *cli) *cobra.Command {
	var f docFlags

	cmd := &cobra.Command{
		Use:   "translate <type> <document>",
		Short: "Translate a document into one or more locales",
		Long: `Translate every localized string of a document in one run.

Segments already in the cache are reused. If a chunk fails, the chunks
that finished stay cached and the next run only sends what is left.

Examples:
  doclate translate api::article.article welcome --to de
  doclate translate api::article.article welcome --to de,fr --save
  doclate translate api::page.page about --to ja --instructions "Keep product names in English"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bar := newProgressPrinter(os.Stderr, !c.verbose)
			c.onProgress = bar.Update
			a, err := c.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			reqs, err := f.requests(a.cfg, args[0], args[1])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			for _, req := range reqs {
				res, err := a.svc.TranslateDocument(ctx, req)
				bar.End()
				if err != nil {
					if res != nil {
						reportResult(req, res)
					}
					return err
				}
				reportResult(req, res)
				if err := deliver(ctx, a, req, res, f.save, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	f.register(cmd)

	return cmd
}

// ---------------------------------------------------------------------------
// progress
// ---------------------------------------------------------------------------

func newProgressCmd(c *cli) *cobra.Command {
	var (
		f          docFlags
		maxChunks  int
		untilDone  bool
		stallLimit int
	)

	cmd := &cobra.Command{
		Use:   "progress <type> <document>",
		Short: "Translate a bounded number of chunks and report what is left",
		Long: `Translate at most --max-chunks chunks per call and report progress.

Each call resumes from the cache, so a large document can be translated
across many short runs. With --until-done the call is repeated until the
document is complete or no progress is made for --stall-limit calls.

Examples:
  doclate progress api::article.article welcome --to de
  doclate progress api::article.article welcome --to de --max-chunks 3
  doclate progress api::article.article welcome --to de --until-done --save`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stallLimit < 1 {
				stallLimit = 1
			}
			bar := newProgressPrinter(os.Stderr, !c.verbose)
			c.onProgress = bar.Update
			a, err := c.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			reqs, err := f.requests(a.cfg, args[0], args[1])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			for _, req := range reqs {
				res, err := runProgress(ctx, a.svc, req, maxChunks, untilDone, stallLimit, bar.End)
				if err != nil {
					return err
				}
				if f.save || res.Done {
					if err := deliver(ctx, a, req, res, f.save, cmd.OutOrStdout()); err != nil {
						return err
					}
				} else if err := writeJSON(cmd.OutOrStdout(), res.Progress); err != nil {
					return err
				}
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&maxChunks, "max-chunks", 1, "Chunks to translate per call")
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "Repeat calls until the document is complete")
	cmd.Flags().IntVar(&stallLimit, "stall-limit", 3, "Give up after this many calls without progress")

	return cmd
}

// progressService is the part of translate.Service runProgress drives.
type progressService interface {
	TranslateDocumentProgress(ctx context.Context, req translate.Request, maxChunks int) (*translate.Result, error)
}

// runProgress calls TranslateDocumentProgress once, or repeatedly when
// untilDone is set. Retryable failures count as calls without progress.
func runProgress(ctx context.Context, svc progressService, req translate.Request, maxChunks int, untilDone bool, stallLimit int, endLine func()) (*translate.Result, error) {
	last := -1
	stalls := 0
	for {
		res, err := svc.TranslateDocumentProgress(ctx, req, maxChunks)
		if endLine != nil {
			endLine()
		}
		if res != nil {
			reportResult(req, res)
		}
		if err != nil {
			if !untilDone || res == nil || ctx.Err() != nil || !translate.IsRetryable(err) {
				return res, err
			}
			logWarning("%v", err)
		}
		if res.Done || !untilDone {
			return res, nil
		}

		if res.Progress.Translated <= last {
			stalls++
			if stalls >= stallLimit {
				return res, fmt.Errorf("%s/%s -> %s: no progress after %d calls", req.TypeID, req.DocumentID, req.TargetLocale, stalls)
			}
		} else {
			stalls = 0
		}
		last = res.Progress.Translated
	}
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func newSyncCmd(c *cli) *cobra.Command {
	var (
		targets   []string
		dryRun    bool
		keepGoing bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Translate every target declared in .doclate.yaml",
		Long: `Translate and save all documents declared under "targets" in
.doclate.yaml. Targets without a document list cover every document of
their type found in the content directory.

Example .doclate.yaml:

  backend: openai
  locales: [de, fr]
  targets:
    - name: articles
      type: api::article.article
    - name: legal
      type: api::page.page
      documents: [terms, privacy]
      locales: [de]
      instructions: Use formal register.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := config.LoadProjectFile(c.rootDir)
			if err != nil {
				return err
			}
			if pf == nil || len(pf.Targets) == 0 {
				return fmt.Errorf(i18n.T("no targets declared in %s"), config.ProjectFileName)
			}

			bar := newProgressPrinter(os.Stderr, !c.verbose && !dryRun)
			c.onProgress = bar.Update
			a, err := c.open(!dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := pf.Jobs(a.docs)
			if err != nil {
				return err
			}
			jobs = filterJobs(jobs, targets)
			logInfo(i18n.N("%d job", "%d jobs", len(jobs)), len(jobs))

			if dryRun {
				for _, j := range jobs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s/%s\t%s -> %s\n", j.Target, j.TypeID, j.DocumentID, j.SourceLocale, j.TargetLocale)
				}
				return nil
			}

			ctx, cancel := signalContext()
			defer cancel()

			var errs []error
			for _, j := range jobs {
				req := translate.Request{
					TypeID:       j.TypeID,
					DocumentID:   j.DocumentID,
					SourceLocale: j.SourceLocale,
					TargetLocale: j.TargetLocale,
					Instructions: j.Instructions,
					IncludeJSON:  j.IncludeJSON,
				}
				if req.Instructions == "" {
					req.Instructions = a.cfg.Instructions
				}
				res, err := a.svc.TranslateDocument(ctx, req)
				bar.End()
				if res != nil {
					reportResult(req, res)
				}
				if err == nil {
					err = deliver(ctx, a, req, res, true, cmd.OutOrStdout())
				}
				if err != nil {
					if !keepGoing || ctx.Err() != nil {
						return err
					}
					logError("%v", err)
					errs = append(errs, err)
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d jobs failed: %w", len(errs), len(jobs), errors.Join(errs...))
			}
			logSuccess("%s", i18n.T("All targets are up to date"))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "Only sync the named targets")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the jobs without translating")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Continue with the next job after a failure")

	return cmd
}

// filterJobs keeps the jobs of the named targets. No names keeps all.
func filterJobs(jobs []config.Job, names []string) []config.Job {
	if len(names) == 0 {
		return jobs
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []config.Job
	for _, j := range jobs {
		if want[j.Target] {
			out = append(out, j)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// segments
// ---------------------------------------------------------------------------

func newSegmentsCmd(c *cli) *cobra.Command {
	var (
		from        string
		to          string
		includeJSON bool
	)

	cmd := &cobra.Command{
		Use:   "segments <type> <document>",
		Short: "List the translatable segments of a document",
		Long: `Print the segments a translation would send to the backend, as JSON.
Neither the cache nor the backend is contacted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if from == "" {
				from = a.cfg.SourceLocale
			}
			segs, err := a.svc.Segments(cmd.Context(), translate.Request{
				TypeID:       args[0],
				DocumentID:   args[1],
				SourceLocale: from,
				TargetLocale: to,
				IncludeJSON:  includeJSON,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), segs)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source locale (default: source_locale from config)")
	cmd.Flags().StringVarP(&to, "to", "t", "", "Target locale")
	cmd.Flags().BoolVar(&includeJSON, "include-json", false, "Also list strings inside json attributes")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// ---------------------------------------------------------------------------
// populate
// ---------------------------------------------------------------------------

func newPopulateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "populate [type]",
		Short: "Show the populate specification of a content type",
		Long: `Print the populate specification derived from a content type schema:
every relation, component and dynamic zone a fetch must expand. Without
an argument the known content types are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cat, err := schema.LoadDir(c.resolvePath(cfg.Schema.Dir))
			if err != nil {
				return err
			}
			if len(args) == 0 {
				for _, uid := range cat.Types() {
					fmt.Fprintln(cmd.OutOrStdout(), uid)
				}
				return nil
			}
			s, ok := cat.Schema(args[0])
			if !ok {
				return fmt.Errorf("%w: unknown content type %q", translate.ErrPrecondition, args[0])
			}
			return writeJSON(cmd.OutOrStdout(), schema.Populate(s, cat))
		},
	}

	return cmd
}
