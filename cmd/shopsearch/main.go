package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hession/shopsearch/internal/cli"
	"github.com/hession/shopsearch/internal/config"
	"github.com/hession/shopsearch/internal/history"
	"github.com/hession/shopsearch/internal/search"
	"github.com/hession/shopsearch/internal/server"
	"github.com/spf13/cobra"
)

var version = cli.Version

var errSearchFailed = errors.New("search failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "shopsearch",
		Short: "shopsearch - AI shopping search",
		Long: `shopsearch turns a natural-language shopping request into a structured
product search.

It can:
  • Interpret your request against the store's filter catalog
  • Fetch live listings from the scraping service
  • Summarize what it found
  • Serve the same experience as a web page and JSON API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			orch, err := a.orchestrator(ctx, search.WithStateHandler(cli.ProgressPrinter(cmd.OutOrStdout())))
			if err != nil {
				return err
			}
			a.loadCatalog(ctx)

			cli.NewREPL(ctx, orch, a.catalog, a.history, cmd.OutOrStdout()).Run()
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	rootCmd.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newHistoryCmd(),
		newFiltersCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}

			// Searches before the catalog arrives fail validation
			go a.loadCatalog(ctx)

			if a.cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv, err := server.New(server.Options{
				Addr:            a.cfg.Addr(),
				CORSOrigins:     a.cfg.Server.CORSOrigins,
				ShutdownTimeout: a.cfg.ShutdownTimeout(),
			}, orch, a.catalog, a.history, a.log)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", a.cfg.Addr())
			return srv.Run(ctx)
		},
	}
}

func newSearchCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Run a single search and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var opts []search.Option
			if !jsonOut {
				opts = append(opts, search.WithStateHandler(cli.ProgressPrinter(cmd.ErrOrStderr())))
			}
			orch, err := a.orchestrator(ctx, opts...)
			if err != nil {
				return err
			}
			a.loadCatalog(ctx)

			snap, err := orch.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(snap); err != nil {
					return err
				}
			} else {
				cli.PrintSnapshot(out, snap)
			}

			if snap.Phase == search.PhaseFailed {
				return errSearchFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the session snapshot as JSON")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		limit   int
		keyword string
	)

	withHistory := func(cmd *cobra.Command, fn func(*app) error) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.history == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "History is disabled")
			return nil
		}
		return fn(a)
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(a *app) error {
				var (
					records []*history.Record
					err     error
				)
				if keyword != "" {
					records, err = a.history.Find(cmd.Context(), keyword, limit)
				} else {
					records, err = a.history.List(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				cli.PrintHistory(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "maximum number of searches to list")
	cmd.Flags().StringVar(&keyword, "find", "", "only list searches matching a keyword")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one recorded search as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withHistory(cmd, func(a *app) error {
					rec, err := a.history.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if rec == nil {
						return fmt.Errorf("search %s not found", args[0])
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(rec)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete one recorded search",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withHistory(cmd, func(a *app) error {
					return a.history.Delete(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete all recorded searches",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withHistory(cmd, func(a *app) error {
					if err := a.history.Clear(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "✅ History cleared")
					return nil
				})
			},
		},
	)
	return cmd
}

func newFiltersCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Print the filter catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.loadCatalog(cmd.Context())
			if w := a.catalog.Warning(); w != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), w)
			}

			filters, _ := a.catalog.Filters()
			if jsonOut {
				fmt.Fprintln(cmd.OutOrStdout(), filters.JSON())
				return nil
			}
			cli.PrintFilters(cmd.OutOrStdout(), filters)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the catalog as JSON")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file path: %s\n", path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shopsearch v%s\n", version)
		},
	}
}
