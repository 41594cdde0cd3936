// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/nathanvale/capture-bridge/internal/backup"
	"github.com/nathanvale/capture-bridge/internal/clock"
	"github.com/nathanvale/capture-bridge/internal/config"
	"github.com/nathanvale/capture-bridge/internal/credentials"
	"github.com/nathanvale/capture-bridge/internal/exporter"
	"github.com/nathanvale/capture-bridge/internal/fetch"
	"github.com/nathanvale/capture-bridge/internal/gmailsrc"
	"github.com/nathanvale/capture-bridge/internal/ledger"
	"github.com/nathanvale/capture-bridge/internal/metrics"
	"github.com/nathanvale/capture-bridge/internal/poller"
	"github.com/nathanvale/capture-bridge/internal/ratelimit"
	"github.com/nathanvale/capture-bridge/internal/server"
	"github.com/nathanvale/capture-bridge/internal/stager"
	"github.com/nathanvale/capture-bridge/internal/vault"
	"github.com/nathanvale/capture-bridge/internal/voicewatch"
)

const (
	// Version information
	Version   = "0.1.0"
	BuildDate = "development"

	shutdownTimeout = 30 * time.Second
	exportInterval  = 30 * time.Second
)

var rootCmd = &cobra.Command{
	Use:     "capture-bridged",
	Short:   "Personal capture ingestion daemon",
	Version: Version,
	Long: `capture-bridged

DESCRIPTION:
    Polls Gmail for new messages and watches the voice inbox directory for
    voice memos, stages each capture in a local SQLite ledger under the
    vault's .capture-bridge directory, and exports every
    staged capture to a Markdown note in the vault. Runs hourly/daily backups
    of the ledger with integrity verification and escalating alerts on
    repeated failure.

CONFIGURATION:
    Configuration is read from environment variables:

    CAPTURE_BRIDGE_VAULT_ROOT        - Notes vault root (default: ./vault)
    CAPTURE_BRIDGE_LEDGER_PATH       - Validated but not used by the daemon (ledger lives under the vault root)
    CAPTURE_BRIDGE_BACKUP_DIR        - Validated but not used by the daemon (backups live under the vault root)
    CAPTURE_BRIDGE_METRICS_ADDR      - Prometheus listen address (default: :9090)
    CAPTURE_BRIDGE_VOICE_INBOX_DIR   - Directory watched for new voice memos (default: ./voice-inbox)
    CAPTURE_BRIDGE_POLLER_POLL_INTERVAL       - Poll cadence (default: 60s)
    CAPTURE_BRIDGE_POLLER_CREDENTIALS_PATH    - Directory holding credentials.json/token.json
    CAPTURE_BRIDGE_POLLER_RATE_LIMIT_MAX_RPS  - Optional token-bucket rate
    CAPTURE_BRIDGE_POLLER_RATE_LIMIT_BURST    - Optional token-bucket burst`,
	RunE: runDaemon,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Print a read-only report of auth and backup health",
	RunE:  runDiagnose,
}

// Execute adds all child commands to the root command and runs it. Called
// by main.main(); only needs to happen once.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

// ledgerPath is the one location the live ledger and its hourly/daily
// backups both agree on: backup.Paths derives its snapshot source from
// VaultRoot alone, so the daemon opens the live store at that same path
// rather than config.Paths.LedgerPath, which would let the two silently
// drift apart.
func ledgerPath(paths config.Paths) string {
	return backup.Paths{VaultRoot: paths.VaultRoot}.LedgerFile()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("starting capture-bridge daemon", "version", Version, "build_date", BuildDate)

	paths, err := config.LoadPaths()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	pollerCfg, err := config.LoadPollerConfig()
	if err != nil {
		return fmt.Errorf("poller configuration error: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(ledgerPath(paths)), 0o700); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	store, err := ledger.Open(ledgerPath(paths))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	logger.Info("ledger opened", "path", ledgerPath(paths))

	failureTracker := credentials.NewFailureTracker(store)
	if err := failureTracker.CheckAllowed(); err != nil {
		logger.Error("auth failure ceiling reached, run 'capture-bridged diagnose'", "error", err)
		return err
	}

	ctx := context.Background()
	gmailClient, err := newGmailSource(ctx, pollerCfg, failureTracker)
	if err != nil {
		logger.Error("failed to initialize gmail source", "error", err)
		return fmt.Errorf("gmail source: %w", err)
	}

	if err := os.MkdirAll(paths.VaultRoot, 0o700); err != nil {
		return fmt.Errorf("create vault root: %w", err)
	}
	writer := vault.NewAtomicWriter(paths.VaultRoot)
	if err := writer.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare vault directories: %w", err)
	}
	pathResolver := vault.NewPathResolver(paths.VaultRoot)
	detector := vault.NewCollisionDetector(ledger.NewAuditStore(store.DB()))
	exp := exporter.New(writer, pathResolver, detector, store)

	p := buildPoller(store, gmailClient, pollerCfg)
	pollLoop := &poller.Loop{Poller: p, Interval: pollerCfg.PollInterval}
	pollLoop.Start(ctx)
	logger.Info("poll loop started", "interval", pollerCfg.PollInterval)

	exportLoop := &exporter.Loop{Exporter: exp, Store: store, Interval: exportInterval}
	exportLoop.Start()
	logger.Info("export loop started", "interval", exportInterval)

	if err := os.MkdirAll(paths.VoiceInboxDir, 0o700); err != nil {
		return fmt.Errorf("create voice inbox dir: %w", err)
	}
	voiceWatcher := voicewatch.New(paths.VoiceInboxDir, store)
	if err := voiceWatcher.Start(ctx); err != nil {
		return fmt.Errorf("start voice watcher: %w", err)
	}
	logger.Info("voice watcher started", "dir", paths.VoiceInboxDir)

	bp := backup.Paths{VaultRoot: paths.VaultRoot}
	orch := backup.NewOrchestrator(store, bp)
	orch.Recorder = metrics.BackupAdapter{}
	backupSched := &backup.Scheduler{Orchestrator: orch, Paths: bp}
	backupSched.Start(ctx)
	logger.Info("backup scheduler started")

	metricsSrv := &http.Server{Addr: paths.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server started", "addr", paths.MetricsAddr)

	logger.Info("capture-bridge daemon running")
	return server.Run(shutdownTimeout,
		pollLoop,
		exportLoop,
		voiceWatcher,
		backupSched,
		server.ShutdownFunc(func(ctx context.Context) error { return metricsSrv.Shutdown(ctx) }),
	)
}

// newGmailSource loads the cached OAuth2 credentials and builds the Gmail
// client, recording the outcome against the auth-failure counter the way
// spec §7 requires every authorize/refresh attempt to.
func newGmailSource(ctx context.Context, pollerCfg config.PollerConfig, tracker *credentials.FailureTracker) (*gmailsrc.Client, error) {
	credsPath := filepath.Join(pollerCfg.CredentialsPath, "credentials.json")
	tokenPath := filepath.Join(pollerCfg.CredentialsPath, "token.json")

	creds, err := credentials.LoadClientCredentials(credsPath)
	if err != nil {
		_ = tracker.RecordFailure()
		return nil, fmt.Errorf("load client credentials: %w", err)
	}
	tok, err := credentials.LoadToken(tokenPath)
	if err != nil {
		_ = tracker.RecordFailure()
		return nil, fmt.Errorf("load token: %w", err)
	}

	tokenSource := credentials.NewTokenSource(ctx, creds, tok, tokenPath)
	client, err := gmailsrc.New(ctx, tokenSource, "me")
	if err != nil {
		_ = tracker.RecordFailure()
		return nil, fmt.Errorf("build gmail client: %w", err)
	}

	_ = tracker.RecordSuccess()
	return client, nil
}

func buildPoller(store *ledger.Store, source *gmailsrc.Client, cfg config.PollerConfig) *poller.Poller {
	p := poller.New(store)
	p.Source = source
	p.Fetcher = &fetch.Fetcher{
		Source: source,
		Store:  store,
		Now:    func() string { return time.Now().UTC().Format("2006-01-02T15:04:05.000Z") },
	}
	emailStager := stager.NewEmailStager()
	emailStager.Metrics = metrics.StagerAdapter{}
	p.Stager = emailStager
	p.Metrics = metrics.PollerAdapter{}

	if cfg.RateLimitEnabled() {
		rlCfg := ratelimit.Config{MaxRequestsPerSecond: cfg.MaxRequestsPerSec, BurstCapacity: float64(cfg.BurstCapacity)}
		p.RateLimiter = ratelimit.NewBucket(rlCfg, clock.Real{}, clock.Real{})
	}
	return p
}

// runDiagnose is a read-only reporter over the ledger's sync_state table:
// it never drives a refresh or a backup itself, satisfying spec §7's
// instruction that a failed authorize tell the user to "run diagnostics"
// without the diagnose command becoming a second implementation of the
// daemon's own auth/backup logic.
func runDiagnose(cmd *cobra.Command, args []string) error {
	paths, err := config.LoadPaths()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	db, err := ledger.OpenReadOnly(ledgerPath(paths))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	failures, _, err := ledger.GetSyncState(db, ledger.KeyGmailAuthFailures)
	if err != nil {
		return fmt.Errorf("read auth failure count: %w", err)
	}
	lastAuth, lastAuthFound, err := ledger.GetSyncState(db, ledger.KeyLastGmailAuth)
	if err != nil {
		return fmt.Errorf("read last auth timestamp: %w", err)
	}
	backupRaw, backupFound, err := ledger.GetSyncState(db, ledger.KeyBackupVerificationState)
	if err != nil {
		return fmt.Errorf("read backup verification state: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "capture-bridge diagnostics")
	fmt.Fprintln(cmd.OutOrStdout(), "---------------------------")
	if failures == "" {
		failures = "0"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "gmail auth failures: %s\n", failures)
	if lastAuthFound {
		fmt.Fprintf(cmd.OutOrStdout(), "last successful auth: %s\n", lastAuth)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "last successful auth: never recorded")
	}

	if backupFound {
		state, err := backup.UnmarshalState(backupRaw)
		if err != nil {
			return fmt.Errorf("parse backup verification state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backup status: %s (consecutive failures: %d)\n", state.Status, state.ConsecutiveFailures)
		if state.LastSuccess != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "last successful backup: %s\n", state.LastSuccess)
		}
		if state.LastFailure != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "last failed backup: %s\n", state.LastFailure)
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "backup status: no backup has run yet")
	}

	return nil
}
