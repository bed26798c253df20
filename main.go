// doclate translates structured CMS documents with LLM backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/minios-linux/doclate/backend"
	"github.com/minios-linux/doclate/cache"
	"github.com/minios-linux/doclate/config"
	"github.com/minios-linux/doclate/content"
	"github.com/minios-linux/doclate/i18n"
	"github.com/minios-linux/doclate/schema"
	"github.com/minios-linux/doclate/settings"
	"github.com/minios-linux/doclate/store/filestore"
	"github.com/minios-linux/doclate/store/lrustore"
	"github.com/minios-linux/doclate/store/memstore"
	"github.com/minios-linux/doclate/store/objstore"
	"github.com/minios-linux/doclate/store/sqlstore"
	"github.com/minios-linux/doclate/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

// cli carries the persistent flags. Every configuration flag is bound to
// a viper key so flags win over env and the project file.
type cli struct {
	v       *viper.Viper
	rootDir string
	verbose bool

	// onProgress is handed to the translation service built by open.
	onProgress func(done, total int)
}

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"backend":      "backend",
	"model":        "model",
	"endpoint":     "endpoint",
	"api-key":      "api_key",
	"proxy":        "proxy",
	"timeout":      "timeout",
	"max-retries":  "max_retries",
	"cache-driver": "cache.driver",
	"content-dir":  "content.dir",
	"schema-dir":   "schema.dir",
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "doclate",
		Short: "Translate structured CMS documents with LLM backends",
		Long: `doclate translates the localized text of structured documents.

Documents are described by content-type schemas. doclate walks a source
document, sends its translatable strings to an LLM backend in bounded
chunks, caches every result by content hash and writes the translated
document back in the same shape. Interrupted runs resume from the cache.

Backends:
  openai         OpenAI (API key)
  groq           Groq (API key)
  openrouter     OpenRouter (API key)
  custom-openai  Any OpenAI-compatible endpoint
  gemini         Google AI (Gemini API key)
  ollama         Local Ollama server

Configuration is read from flags, DOCLATE_* environment variables,
.doclate.yaml in the project root and keys stored with "doclate auth login".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init("")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.rootDir, "root", ".", "Project root directory")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Verbose logging")
	pf.String("backend", "", "Translation backend ("+strings.Join(backend.Names(), ", ")+")")
	pf.String("model", "", "Model name")
	pf.String("endpoint", "", "Backend base URL")
	pf.String("api-key", "", "Backend API key")
	pf.String("proxy", "", "HTTP proxy URL")
	pf.Duration("timeout", 0, "Per-request timeout")
	pf.Int("max-retries", 0, "Retries for transient backend failures")
	pf.String("cache-driver", "", "Cache driver ("+strings.Join(config.Drivers, ", ")+")")
	pf.String("content-dir", "", "Content directory")
	pf.String("schema-dir", "", "Schema directory")
	bindFlags(c.v, pf)

	_ = root.RegisterFlagCompletionFunc("backend", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return backend.Names(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("cache-driver", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.Drivers, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newTranslateCmd(c),
		newProgressCmd(c),
		newSyncCmd(c),
		newSegmentsCmd(c),
		newPopulateCmd(c),
		newCacheCmd(c),
		newPingCmd(c),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

// bindFlags binds the flags named in flagKeys. Unset flags do not
// shadow lower layers.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		if hint := errorHint(err); hint != "" {
			logInfo("%s", hint)
		}
		os.Exit(1)
	}
}

// errorHint suggests a next step for well-known failures.
func errorHint(err error) string {
	switch {
	case errors.Is(err, backend.ErrAuth):
		return i18n.T("Check the API key, or store one with 'doclate auth login'")
	case errors.Is(err, translate.ErrNotFound):
		return i18n.T("The source document does not exist in the content directory")
	case errors.Is(err, backend.ErrTransport), errors.Is(err, backend.ErrTimeout):
		return i18n.T("The backend could not be reached. Finished chunks are cached, run the command again to resume")
	}
	return ""
}

// signalContext is cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, finished chunks stay cached"))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("doclate version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Application wiring
// ---------------------------------------------------------------------------

// app is everything a command needs, built from the merged configuration.
type app struct {
	cfg     *config.Config
	catalog *schema.Catalog
	docs    *content.Dir
	store   cache.Store
	cache   *cache.Cache
	backend backend.Backend
	svc     *translate.Service

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logWarning("close: %v", err)
		}
	}
}

// loadConfig merges all configuration layers for the project root.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.v, c.rootDir)
	if err != nil {
		return nil, err
	}
	cfg.ApplyStored(settings.Get(cfg.Backend))
	if c.verbose && cfg.FileUsed != "" {
		logInfo("Using %s", cfg.FileUsed)
	}
	return cfg, nil
}

// resolvePath makes p relative to the project root.
func (c *cli) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.rootDir, p)
}

// open builds the application. The backend is only constructed when
// withBackend is set, so offline commands work without credentials.
func (c *cli) open(withBackend bool) (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	a.catalog, err = schema.LoadDir(c.resolvePath(cfg.Schema.Dir))
	if err != nil {
		return nil, fmt.Errorf("loading schemas: %w", err)
	}
	a.docs = content.NewDir(c.resolvePath(cfg.Content.Dir))

	st, closeStore, err := c.openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Driver, err)
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	if st != nil {
		a.store = st
		a.cache = cache.New(st, cfg.Cache.Version)
	}

	if withBackend {
		be, err := c.openBackend(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.backend = be
	}

	a.svc = translate.New(a.catalog, a.docs, a.backend, a.cache, translate.Options{
		MaxSegments: cfg.Chunk.MaxSegments,
		MaxChars:    cfg.Chunk.MaxChars,
		Concurrency: cfg.Chunk.Concurrency,
		Timeout:     chunkTimeout(cfg),
		OnProgress:  c.onProgress,
		OnLog:       logInfo,
		OnError:     logError,
		Verbose:     c.verbose,
	})
	return a, nil
}

// chunkTimeout is the budget of one chunk. timeout bounds a single HTTP
// attempt, so the chunk must leave room for every retry and its backoff.
func chunkTimeout(cfg *config.Config) time.Duration {
	if cfg.Chunk.Timeout > 0 {
		return cfg.Chunk.Timeout
	}
	return backend.CallBudget(backend.Config{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries})
}

// openStore builds the configured cache store. A nil store means the
// cache is disabled.
func (c *cli) openStore(cfg *config.Config) (cache.Store, func() error, error) {
	var (
		st      cache.Store
		closeFn func() error
	)
	switch cfg.Cache.Driver {
	case config.DriverNone:
		return nil, nil, nil
	case config.DriverMemory:
		st = memstore.New()
	case config.DriverFile:
		st = filestore.New(c.resolvePath(cfg.Cache.Dir))
	case config.DriverSQLite:
		path := cfg.Cache.DSN
		if path == "" {
			path = filepath.Join(cfg.Cache.Dir, "cache.db")
		}
		s, err := sqlstore.OpenSQLite(c.resolvePath(path))
		if err != nil {
			return nil, nil, err
		}
		st, closeFn = s, s.Close
	case config.DriverPostgres:
		s, err := sqlstore.OpenPostgres(cfg.Cache.DSN)
		if err != nil {
			return nil, nil, err
		}
		st, closeFn = s, s.Close
	case config.DriverMinIO:
		s, err := objstore.New(objstore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			Region:    cfg.MinIO.Region,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.Secure,
		})
		if err != nil {
			return nil, nil, err
		}
		st = s
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}

	if cfg.Cache.LRUSize > 0 {
		l, err := lrustore.New(st, cfg.Cache.LRUSize)
		if err != nil {
			if closeFn != nil {
				_ = closeFn()
			}
			return nil, nil, err
		}
		st = l
	}
	return st, closeFn, nil
}

// openBackend builds the backend with the stored system prompt and a
// circuit breaker in front of it.
func (c *cli) openBackend(cfg *config.Config) (backend.Backend, error) {
	prompts, path, err := settings.LoadPromptsFromDefaultLocation(map[string]string{
		settings.PromptDefault: backend.DefaultSystemPrompt,
	})
	if err != nil {
		logWarning("prompts: %v", err)
	}
	var system string
	if prompts != nil {
		system = prompts.Prompt(settings.PromptDefault)
		if c.verbose && path != "" {
			logInfo("Using prompts from %s", path)
		}
	}

	be, err := backend.New(backend.Config{
		ID:           cfg.Backend,
		BaseURL:      cfg.Endpoint,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Proxy:        cfg.Proxy,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		SystemPrompt: system,
		OnLog:        logWarning,
		Verbose:      c.verbose,
	})
	if err != nil {
		return nil, err
	}
	if c.verbose {
		logInfo("Backend: %s, model: %s, endpoint: %s", be.Name(), be.Model(), be.Endpoint())
	}
	return backend.WithBreaker(be, backend.BreakerSettings{
		OnStateChange: func(name, from, to string) {
			logWarning("backend %s: circuit %s -> %s", name, from, to)
		},
	}), nil
}
