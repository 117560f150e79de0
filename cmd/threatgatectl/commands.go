package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/threatgate/threatgate/internal/config"
	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/internal/policy"
	"github.com/threatgate/threatgate/internal/quarantine"
	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

// engine bundles everything a command needs: configuration, storages, the
// policy graph and the quarantine manager.
type engine struct {
	cfg     *config.Config
	stores  *store.Storages
	graph   *policy.Graph
	manager *quarantine.Manager
}

// openEngine builds the engine from environment configuration with the
// persistent flag overrides applied on top.
func openEngine(ctx context.Context, dbPath, quarantineDir string) (*engine, error) {
	cfg, err := config.GetConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if quarantineDir != "" {
		cfg.Quarantine.Dir = quarantineDir
	}

	log := logger.NewLogger("threatgatectl")

	stores, err := store.NewStorages(ctx, cfg.Storage, cfg.Breaker, log)
	if err != nil {
		return nil, err
	}

	graph, err := policy.NewGraph(stores, cfg.Cache.Size, log)
	if err != nil {
		stores.Close()
		return nil, err
	}

	if err = graph.SeedBuiltinTemplates(ctx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("seed builtin templates: %w", err)
	}

	manager, err := quarantine.NewManager(ctx, cfg.Quarantine, stores, log)
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &engine{cfg: cfg, stores: stores, graph: graph, manager: manager}, nil
}

func (e *engine) close() {
	e.manager.Close()
	if err := e.stores.Close(); err != nil {
		fmt.Println("warning: closing storage:", err)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath, quarantineDir string

	root := &cobra.Command{
		Use:           "threatgatectl",
		Short:         "Administer the security policy and quarantine engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the policy database (overrides STORAGE_DB_PATH)")
	root.PersistentFlags().StringVar(&quarantineDir, "quarantine-dir", "", "quarantine directory (overrides QUARANTINE_DIR)")

	// withEngine wraps a command body with engine setup and teardown.
	withEngine := func(run func(ctx context.Context, e *engine, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), dbPath, quarantineDir)
			if err != nil {
				return err
			}
			defer e.close()
			return run(cmd.Context(), e, args)
		}
	}

	root.AddCommand(
		newStatusCmd(withEngine),
		newListPoliciesCmd(withEngine),
		newShowPolicyCmd(withEngine),
		newListQuarantineCmd(withEngine),
		newRestoreCmd(withEngine),
		newDeleteCmd(withEngine),
		newCleanupCmd(withEngine),
		newWatchCmd(withEngine),
		newVacuumCmd(withEngine),
		newVerifyCmd(withEngine),
		newBackupCmd(withEngine),
		newVersionCmd(),
	)

	return root
}

type engineRunner func(func(ctx context.Context, e *engine, args []string) error) func(*cobra.Command, []string) error

// outputJSON writes v to stdout as indented JSON for machine consumers.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(withEngine engineRunner) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine health and quarantine statistics",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			healthy := e.graph.IsHealthy(ctx)
			stats := e.manager.GetStatistics()

			if asJSON {
				if err := outputJSON(models.StatisticsResponse{
					Version:    models.ContractVersion,
					Statistics: stats,
				}); err != nil {
					return err
				}
				if !healthy {
					return fmt.Errorf("storage is unhealthy")
				}
				return nil
			}

			fmt.Println("Storage healthy:", healthy)
			fmt.Println("Database path:  ", e.cfg.Storage.DBPath)
			fmt.Println("Quarantine dir: ", e.cfg.Quarantine.Dir)
			fmt.Println("Retention:      ", e.cfg.Quarantine.Retention)
			fmt.Printf("Quarantined files: %d (%d bytes)\n", stats.CurrentCount, stats.CurrentSizeBytes)

			if !healthy {
				return fmt.Errorf("storage is unhealthy")
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")

	return cmd
}

func newListPoliciesCmd(withEngine engineRunner) *cobra.Command {
	var action, matchType string

	cmd := &cobra.Command{
		Use:   "list-policies",
		Short: "List stored policies",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			policies, err := e.graph.ListPolicies(ctx, store.ListPoliciesFilter{
				Action:    models.PolicyAction(action),
				MatchType: models.MatchType(matchType),
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRULE\tACTION\tMATCH TYPE\tHITS\tEXPIRES")
			for _, p := range policies {
				expires := "never"
				if p.ExpiresAt != nil {
					expires = p.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
					p.ID, p.RuleName, p.Action, p.MatchType, p.HitCount, expires)
			}
			return w.Flush()
		}),
	}

	cmd.Flags().StringVar(&action, "action", "", "filter by action (allow, block, quarantine, block_autofill, warn_user)")
	cmd.Flags().StringVar(&matchType, "match-type", "", "filter by match type (download, form_mismatch, insecure_cred, third_party_form)")

	return cmd
}

func newShowPolicyCmd(withEngine engineRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "show-policy <id>",
		Short: "Show one policy in full",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			p, err := e.graph.GetPolicy(ctx, id)
			if err != nil {
				return err
			}

			fmt.Println("ID:          ", p.ID)
			fmt.Println("Rule name:   ", p.RuleName)
			fmt.Println("URL pattern: ", orDash(p.URLPattern))
			fmt.Println("File hash:   ", orDash(p.FileHash))
			fmt.Println("MIME type:   ", orDash(p.MimeType))
			fmt.Println("Action:      ", p.Action)
			fmt.Println("Match type:  ", p.MatchType)
			fmt.Println("Created:     ", p.CreatedAt.Format(time.RFC3339), "by", p.CreatedBy)
			fmt.Println("Hits:        ", p.HitCount)
			if p.LastHit != nil {
				fmt.Println("Last hit:    ", p.LastHit.Format(time.RFC3339))
			}
			if p.ExpiresAt != nil {
				fmt.Println("Expires:     ", p.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
}

func newListQuarantineCmd(withEngine engineRunner) *cobra.Command {
	var (
		level  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list-quarantine",
		Short: "List quarantined files",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			records, err := e.manager.ListQuarantinedFiles(ctx, models.ThreatLevel(level))
			if err != nil {
				return err
			}

			if asJSON {
				return outputJSON(models.ListQuarantineResponse{
					Version: models.ContractVersion,
					Records: records,
				})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tORIGINAL PATH\tLEVEL\tSCORE\tSIZE\tQUARANTINED")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.OriginalPath, r.ThreatLevel, r.ThreatScore,
					r.FileSize, r.QuarantinedAt.Format(time.RFC3339))
			}
			return w.Flush()
		}),
	}

	cmd.Flags().StringVar(&level, "level", "", "filter by threat level (clean, low, medium, high, critical)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")

	return cmd
}

func newRestoreCmd(withEngine engineRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id> [destination]",
		Short: "Decrypt a quarantined file back to disk and drop its record",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withEngine(func(ctx context.Context, e *engine, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}

			record, err := e.manager.GetQuarantineRecord(ctx, id)
			if err != nil {
				return err
			}
			if dest == "" {
				dest = record.OriginalPath
			}

			if err = e.manager.RestoreFile(ctx, id, dest); err != nil {
				return err
			}

			fmt.Println("Restored to", dest)
			return nil
		}),
	}
}

func newDeleteCmd(withEngine engineRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently destroy a quarantined file",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err = e.manager.DeleteFile(ctx, id); err != nil {
				return err
			}

			fmt.Println("Deleted quarantine record", id)
			return nil
		}),
	}
}

func newCleanupCmd(withEngine engineRunner) *cobra.Command {
	var (
		retainDays int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the retention sweeps: expired quarantine, expired policies, old threat history",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			cleaned, err := e.manager.CleanupExpired(ctx)
			if err != nil {
				return err
			}

			removed, err := e.graph.CleanupExpiredPolicies(ctx)
			if err != nil {
				return err
			}

			pruned, err := e.graph.CleanupOldThreats(ctx, retainDays)
			if err != nil {
				return err
			}

			if asJSON {
				return outputJSON(models.CleanupResponse{
					Version: models.ContractVersion,
					Removed: int(cleaned),
				})
			}

			fmt.Println("Expired quarantine records removed:", cleaned)
			fmt.Println("Expired policies removed:", removed)
			fmt.Println("Old threat records removed:", pruned)
			return nil
		}),
	}

	cmd.Flags().IntVar(&retainDays, "retain-days", 90, "threat history retention in days")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")

	return cmd
}

func newWatchCmd(withEngine engineRunner) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the retention sweep on a ticker until interrupted",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx,
				syscall.SIGTERM,
				syscall.SIGINT,
				syscall.SIGQUIT,
			)
			defer stop()

			log := logger.NewLogger("threatgatectl")
			job := quarantine.NewCleanupJob(e.manager, log)
			job.Start(ctx, interval)
			defer job.Stop()

			fmt.Println("Retention sweep running every", interval, "(Ctrl-C to stop)")
			<-ctx.Done()
			return nil
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between sweeps")

	return cmd
}

func newVacuumCmd(withEngine engineRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Rebuild the database file to reclaim space",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			if err := e.graph.Vacuum(ctx); err != nil {
				return err
			}
			fmt.Println("Database vacuumed")
			return nil
		}),
	}
}

func newVerifyCmd(withEngine engineRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run the storage integrity check",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *engine, _ []string) error {
			if err := e.graph.VerifyIntegrity(ctx); err != nil {
				return err
			}
			fmt.Println("Integrity check passed")
			return nil
		}),
	}
}

func newBackupCmd(withEngine engineRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Write a consistent online copy of the database",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, args []string) error {
			if err := e.stores.DB.Backup(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("Backup written to", args[0])
			return nil
		}),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println("Build version:", orNA(buildVersion))
			fmt.Println("Build date:   ", orNA(buildDate))
			fmt.Println("Build commit: ", orNA(buildCommit))
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
