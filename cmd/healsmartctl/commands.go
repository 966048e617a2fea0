package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/wolfman30/healsmart/cmd/mainconfig"
	"github.com/wolfman30/healsmart/internal/app/bootstrap"
	"github.com/wolfman30/healsmart/internal/chat"
	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/internal/dashboard"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// env carries what the commands need; tests swap the store and client.
type env struct {
	cfg        *appconfig.Config
	logger     *logging.Logger
	openStore  func(ctx context.Context) (docstore.Backend, error)
	archiver   func(ctx context.Context) (*chat.Archiver, error)
	migrator   func() (migrator, error)
	httpClient *http.Client
}

type migrator interface {
	Up() error
	Force(version int) error
	Version() (uint, bool, error)
	Close() error
}

func newEnv() *env {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, "text", os.Stderr)
	loadAWS := func(ctx context.Context) (aws.Config, error) {
		return mainconfig.LoadAWSConfig(ctx, cfg)
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		openStore: func(ctx context.Context) (docstore.Backend, error) {
			return bootstrap.OpenDocstore(ctx, cfg, loadAWS, nil, logger)
		},
		archiver: func(ctx context.Context) (*chat.Archiver, error) {
			return bootstrap.BuildChatArchiver(ctx, cfg, loadAWS, logger)
		},
		migrator: func() (migrator, error) {
			return bootstrap.OpenMigrator(cfg.DatabaseURL)
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func rootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healsmartctl",
		Short: "HealSmart admin tool",
		Long: `healsmartctl manages HealSmart content and state directly against the
configured document store (DOCSTORE_BACKEND and friends are read from the
environment or a .env file).`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		seedCmd(e),
		addTipCmd(e),
		addNotificationCmd(e),
		clearChatCmd(e),
		statsCmd(e),
		migrateCmd(e),
	)
	return cmd
}

// withStore opens the store for one command and always closes it.
func (e *env) withStore(ctx context.Context, fn func(docstore.Backend) error) error {
	store, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func seedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add the default health tips and notification when missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(store docstore.Backend) error {
				res, err := dashboard.NewService(store, e.logger).SeedDefaults(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d health tips, %d notifications\n", res.Tips, res.Notifications)
				return nil
			})
		},
	}
}

func addTipCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add-tip EMOJI TEXT...",
		Short: "Publish a health tip",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(store docstore.Backend) error {
				id, err := dashboard.NewService(store, e.logger).AddHealthTip(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "health tip %s added\n", id)
				return nil
			})
		},
	}
}

func addNotificationCmd(e *env) *cobra.Command {
	var title, imageURL string
	cmd := &cobra.Command{
		Use:   "add-notification MESSAGE...",
		Short: "Publish a dashboard notification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(store docstore.Backend) error {
				id, err := dashboard.NewService(store, e.logger).AddNotification(cmd.Context(), title, strings.Join(args, " "), imageURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "notification %s added\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Notification title (defaults to HealSmart when rendered)")
	cmd.Flags().StringVar(&imageURL, "image", "", "Image URL (defaults to the logo when rendered)")
	return cmd
}

func clearChatCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-chat",
		Short: "Archive (when configured) and delete the chat transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archiver, err := e.archiver(cmd.Context())
			if err != nil {
				return err
			}
			return e.withStore(cmd.Context(), func(store docstore.Backend) error {
				svc := chat.NewService(store, chat.Options{Archiver: archiver, Logger: e.logger})
				defer svc.Close()
				greeting, err := svc.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chat cleared: %s\n", greeting)
				return nil
			})
		},
	}
}

func statsCmd(e *env) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print counter totals from a running API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			counters, err := fetchStats(cmd.Context(), e.httpClient, baseURL)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), counters)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:"+e.cfg.Port, "API base URL")
	return cmd
}

func fetchStats(ctx context.Context, client *http.Client, baseURL string) ([]metrics.CounterTotal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/stats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch stats: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Counters []metrics.CounterTotal `json:"counters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return payload.Counters, nil
}

func printStats(w io.Writer, counters []metrics.CounterTotal) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTER\tLABELS\tVALUE")
	for _, c := range counters {
		fmt.Fprintf(tw, "%s\t%s\t%g\n", c.Name, formatLabels(c.Labels), c.Value)
	}
	return tw.Flush()
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, ",")
}

func migrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres documents schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.migrator()
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), m)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied, clearing a dirty state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			m, err := e.migrator()
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			if err := m.Force(version); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), m)
		},
	})
	return cmd
}

func printVersion(w io.Writer, m migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
