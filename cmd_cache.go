package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/minios-linux/doclate/backend"
	"github.com/minios-linux/doclate/cache"
	"github.com/minios-linux/doclate/i18n"
)

// ---------------------------------------------------------------------------
// cache
// ---------------------------------------------------------------------------

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the translation cache",
		Long: `Inspect or clear the translation cache.

Entries are grouped in buckets keyed by cache version and hash prefix.
Raising cache.version in .doclate.yaml makes every entry stale at once;
"cache clear --all-versions" also removes the older versions.`,
	}

	cmd.AddCommand(
		newCacheClearCmd(c),
		newCacheStatsCmd(c),
	)

	return cmd
}

func newCacheClearCmd(c *cli) *cobra.Command {
	var allVersions bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cache == nil {
				logWarning("%s", i18n.T("The cache is disabled, nothing to clear"))
				return nil
			}
			res, err := a.svc.ClearCache(cmd.Context(), allVersions)
			if err != nil {
				return err
			}
			logSuccess(i18n.N("Cleared %d bucket", "Cleared %d buckets", res.ClearedBuckets)+" (versions %v)",
				res.ClearedBuckets, res.ClearedVersions)
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&allVersions, "all-versions", false, "Also clear entries written by older cache versions")

	return cmd
}

// bucketStats is implemented by stores that can count their content.
type bucketStats interface {
	Stats() (buckets, entries int, err error)
}

// unwrapper is implemented by stores layered over another store.
type unwrapper interface {
	Unwrap() cache.Store
}

// storeStats finds the innermost store able to report statistics.
func storeStats(st cache.Store) (bucketStats, bool) {
	for st != nil {
		if s, ok := st.(bucketStats); ok {
			return s, true
		}
		u, ok := st.(unwrapper)
		if !ok {
			break
		}
		st = u.Unwrap()
	}
	return nil, false
}

func newCacheStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many buckets and entries the cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.store == nil {
				logWarning("%s", i18n.T("The cache is disabled"))
				return nil
			}
			s, ok := storeStats(a.store)
			if !ok {
				return fmt.Errorf("cache driver %q cannot report statistics", a.cfg.Cache.Driver)
			}
			buckets, entries, err := s.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver:   %s\n", a.cfg.Cache.Driver)
			fmt.Fprintf(cmd.OutOrStdout(), "version:  %d\n", a.cache.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "buckets:  %d\n", buckets)
			fmt.Fprintf(cmd.OutOrStdout(), "entries:  %d\n", entries)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// ping
// ---------------------------------------------------------------------------

func newPingCmd(c *cli) *cobra.Command {
	var (
		check bool
		to    string
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that doclate and, optionally, the backend respond",
		Long: `Print "pong". With --check a one-segment batch is sent to the
configured backend, which verifies the endpoint, the API key and the model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(check)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.svc.Ping())
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			start := time.Now()
			out, err := a.backend.TranslateBatch(ctx, backend.Request{
				Items:        []backend.Item{{ID: "ping", Text: "Hello, world!"}},
				SourceLocale: a.cfg.SourceLocale,
				TargetLocale: to,
			})
			if err != nil {
				return err
			}
			logSuccess("%s (%s, %s): %q in %s", a.backend.Name(), a.backend.Model(), to,
				out["ping"], time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Send a test batch to the backend")
	cmd.Flags().StringVarP(&to, "to", "t", "de", "Target locale of the test batch")

	return cmd
}
