// Package runner coordinates one import run: every configured source is
// fetched, imported and reconciled strictly in sequence, outcomes are
// accumulated into run metrics, and the finished summary is handed to the
// audit log and notification channels.
package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/danamir/banksync/internal/audit"
	"github.com/danamir/banksync/internal/config"
	"github.com/danamir/banksync/internal/errs"
	"github.com/danamir/banksync/internal/ingest"
	"github.com/danamir/banksync/internal/ledger"
	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/metrics"
	"github.com/danamir/banksync/internal/notify"
	"github.com/danamir/banksync/internal/reconcile"
	"github.com/danamir/banksync/internal/resilience"
	"github.com/danamir/banksync/internal/source"
	"github.com/danamir/banksync/internal/spendwatch"
)

// SourceFactory resolves a configured source name to a fetchable source.
type SourceFactory func(name string) source.Source

// Runner executes import runs.
type Runner struct {
	cfg      *config.Config
	ledger   ledger.Ledger
	sources  SourceFactory
	shutdown *resilience.ShutdownCoordinator
	notifier *notify.Service
	auditLog *audit.Log

	ingest     *ingest.Service
	reconciler *reconcile.Service
	watcher    *spendwatch.Evaluator
	retrier    *resilience.Retrier
}

// New wires a Runner from its collaborators. notifier and auditLog may be
// nil to disable those outputs.
func New(cfg *config.Config, l ledger.Ledger, sources SourceFactory, shutdown *resilience.ShutdownCoordinator, notifier *notify.Service, auditLog *audit.Log) *Runner {
	return &Runner{
		cfg:        cfg,
		ledger:     l,
		sources:    sources,
		shutdown:   shutdown,
		notifier:   notifier,
		auditLog:   auditLog,
		ingest:     ingest.NewService(l),
		reconciler: reconcile.NewService(l),
		watcher:    &spendwatch.Evaluator{Ledger: l},
		retrier: &resilience.Retrier{
			MaxAttempts:    cfg.Resilience.MaxRetryAttempts,
			InitialBackoff: cfg.Resilience.InitialBackoff,
			ShouldShutdown: shutdown.IsShuttingDown,
		},
	}
}

// Run executes one full import run and returns its summary. Per-source
// failures are recorded, never propagated; the returned error covers only
// run-level breakage.
func (r *Runner) Run(ctx context.Context) (*metrics.Summary, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)

	run := metrics.NewRun()
	run.StartRun()

	// The config holds sources as a map, so there is no caller-supplied
	// order to preserve; sorting keeps runs deterministic.
	names := make([]string, 0, len(r.cfg.Sources))
	for name := range r.cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	log.Info().Int("sources", len(names)).Msg("Starting import run")

	for _, name := range names {
		if r.shutdown.IsShuttingDown() {
			log.Warn().Str("source", name).Msg("Shutdown requested, skipping remaining sources")
			run.StartSource(name)
			run.RecordSourceFailure(name, errs.ErrShutdown)
			continue
		}
		r.processSource(ctx, run, name, r.cfg.Sources[name])
	}

	summary := run.Summary()
	log.Info().
		Int("successes", summary.Successes).
		Int("failures", summary.Failures).
		Int("transactions", summary.TotalTransactions).
		Int("duplicates", summary.TotalDuplicates).
		Dur("duration", summary.TotalDuration).
		Msg("Import run finished")

	if msg, triggered := r.watcher.Evaluate(ctx, r.cfg.SpendingWatch); triggered && r.notifier != nil {
		r.notifier.SendMessage(ctx, msg)
	}
	if r.auditLog != nil {
		r.auditLog.Record(ctx, summary)
	}
	if r.notifier != nil && r.cfg.Notifications.Enabled {
		r.notifier.SendSummary(ctx, summary)
	}

	return summary, nil
}

func (r *Runner) processSource(ctx context.Context, run *metrics.Run, name string, srcCfg config.Source) {
	log := logger.FromContext(ctx).With().Str("source", name).Logger()
	ctx = logger.WithContext(ctx, log)

	run.StartSource(name)
	log.Info().Msg("Processing source")

	result, err := r.fetch(ctx, name, srcCfg)
	if err != nil {
		log.Error().Err(err).Msg("Source fetch failed")
		run.RecordSourceFailure(name, err)
		return
	}
	if !result.Success {
		err := &errs.SourceError{Source: name, Message: result.ErrorMessage}
		log.Error().Err(err).Msg("Source reported failure")
		run.RecordSourceFailure(name, err)
		return
	}

	log.Info().Int("accounts", len(result.Accounts)).Msg("Source fetched")

	var imported, duplicates int
	for _, acct := range result.Accounts {
		if r.shutdown.IsShuttingDown() {
			log.Warn().Msg("Shutdown requested, stopping account processing")
			run.RecordSourceFailure(name, errs.ErrShutdown)
			return
		}
		imp, dup, err := r.processAccount(ctx, run, name, srcCfg, acct)
		if err != nil {
			log.Error().Err(err).Str("account", acct.AccountNumber).Msg("Account processing failed")
			run.RecordSourceFailure(name, err)
			return
		}
		imported += imp
		duplicates += dup
	}

	run.RecordSourceSuccess(name, imported, duplicates)
	log.Info().Int("imported", imported).Int("duplicates", duplicates).Msg("Source complete")
}

// fetch pulls the source's accounts, retrying with backoff and a per-attempt
// timeout.
func (r *Runner) fetch(ctx context.Context, name string, srcCfg config.Source) (*source.FetchResult, error) {
	src := r.sources(name)
	if src == nil {
		return nil, &errs.ConfigError{Message: fmt.Sprintf("no source available for %s", name)}
	}

	label := fmt.Sprintf("Fetching %s", name)
	var result *source.FetchResult
	err := r.retrier.Do(ctx, label, func(ctx context.Context) error {
		// WithTimeout hands back only the winning side's value, so an
		// abandoned attempt that finishes late can never clobber result.
		res, err := resilience.WithTimeout(ctx, r.cfg.Resilience.FetchTimeout, label, func(ctx context.Context) (*source.FetchResult, error) {
			return src.Fetch(ctx, srcCfg.Credentials, srcCfg.StartDate)
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) processAccount(ctx context.Context, run *metrics.Run, name string, srcCfg config.Source, acct source.Account) (imported, duplicates int, err error) {
	log := logger.FromContext(ctx)

	target := srcCfg.TargetFor(acct.AccountNumber)
	if len(srcCfg.Targets) > 0 && target == nil {
		log.Warn().Str("account", acct.AccountNumber).Msg("No target configured for account, skipping")
		return 0, 0, nil
	}

	accountID := ""
	if target != nil {
		accountID = target.AccountID
	}
	if accountID == "" {
		accountID = deriveAccountID(name, acct.AccountNumber)
	}

	if _, err := r.ingest.GetOrCreateAccount(ctx, accountID, name, acct.AccountNumber); err != nil {
		return 0, 0, err
	}

	res, err := r.ingest.Import(ctx, name, acct.AccountNumber, accountID, acct.Txns)
	if err != nil {
		return 0, 0, err
	}

	run.RecordAccount(name, metrics.AccountDetail{
		AccountNumber:   acct.AccountNumber,
		Balance:         acct.Balance,
		Currency:        acct.Currency,
		NewRecords:      res.NewRecords,
		ExistingRecords: res.ExistingRecords,
	})

	if target != nil && target.Reconcile && acct.Balance != nil {
		rec, err := r.reconciler.Reconcile(ctx, accountID, *acct.Balance, currencyOf(acct))
		if err != nil {
			return 0, 0, fmt.Errorf("reconcile account %s: %w", accountID, err)
		}
		run.RecordReconciliation(name, rec.Status, rec.Diff)
	}

	return res.Imported, res.Duplicates, nil
}

// deriveAccountID synthesizes a stable ledger account id for fetched accounts
// the configuration does not pin to one. The id must not change across runs
// or imports would fork into fresh accounts.
func deriveAccountID(sourceName, accountNumber string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("banksync://"+sourceName+"/"+accountNumber)).String()
}

func currencyOf(acct source.Account) string {
	if acct.Currency != "" {
		return acct.Currency
	}
	return "ILS"
}
