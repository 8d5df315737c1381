package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danamir/banksync/internal/audit"
	"github.com/danamir/banksync/internal/config"
	"github.com/danamir/banksync/internal/ledger"
	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/notify"
	"github.com/danamir/banksync/internal/resilience"
	"github.com/danamir/banksync/internal/runner"
	"github.com/danamir/banksync/internal/source"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "banksync",
	Short: "Idempotent bank transaction importer",
	Long: `Banksync pulls transactions from configured financial sources and merges
them into a local ledger. Re-running the same import never creates duplicate
records; failed sources never block healthy ones.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one import run across all configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log := logger.New()
		ctx := logger.WithContext(cmd.Context(), log)

		l, err := ledgerFromConfig(cfg)
		if err != nil {
			return err
		}

		shutdown := resilience.NewShutdownCoordinator()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigs
			log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
			shutdown.Trigger(ctx)
		}()

		notifier := notifierFromConfig(cfg)
		auditLog := audit.NewLog(cfg.Audit.Path, cfg.Audit.MaxEntries)
		sources := func(name string) source.Source {
			return source.NewBridge(name, cfg.Bridge.URL)
		}

		r := runner.New(cfg, l, sources, shutdown, notifier, auditLog)
		summary, err := r.Run(ctx)

		// The ledger closes only after the run loop has drained, so a
		// shutdown signal never yanks the store out from under an
		// in-flight import.
		if cerr := l.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Closing ledger failed")
		}
		if err != nil {
			return err
		}
		if summary.Failures > 0 {
			return fmt.Errorf("import run finished with %d failed source(s) out of %d", summary.Failures, summary.TotalSources)
		}
		return nil
	},
}

var statusCount int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent import run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		entries := audit.NewLog(cfg.Audit.Path, cfg.Audit.MaxEntries).Recent(statusCount)
		if len(entries) == 0 {
			fmt.Println("No import runs recorded yet.")
			return nil
		}

		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			icon := "OK "
			if e.Failures > 0 {
				icon = "ERR"
			}
			fmt.Printf("%s  %s  sources %d/%d  txns %d  dups %d  %.1fs\n",
				icon, e.Timestamp, e.Successes, e.TotalSources,
				e.TotalTransactions, e.TotalDuplicates,
				time.Duration(e.TotalDuration*int64(time.Millisecond)).Seconds())
			for _, s := range e.Sources {
				if s.Error != "" {
					fmt.Printf("      %s: %s (%s)\n", s.Name, s.Status, s.Error)
				}
			}
		}
		return nil
	},
}

func ledgerFromConfig(cfg *config.Config) (*ledger.SQLiteLedger, error) {
	if dir := filepath.Dir(cfg.Ledger.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return ledger.OpenSQLite(cfg.Ledger.Path)
}

func notifierFromConfig(cfg *config.Config) *notify.Service {
	if !cfg.Notifications.Enabled {
		return nil
	}
	var notifiers []notify.Notifier
	if t := cfg.Notifications.Telegram; t != nil && t.BotToken != "" {
		notifiers = append(notifiers, &notify.TelegramNotifier{Token: t.BotToken, ChatID: t.ChatID})
	}
	if w := cfg.Notifications.Webhook; w != nil && w.URL != "" {
		notifiers = append(notifiers, &notify.WebhookNotifier{URL: w.URL})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notify.NewService(notifiers...)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	statusCmd.Flags().IntVarP(&statusCount, "count", "n", 10, "number of runs to show")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}
