package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtzanidakis/agency/internal/assistant"
	"github.com/mtzanidakis/agency/internal/bus"
	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/container"
	"github.com/mtzanidakis/agency/internal/gm"
	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/natsbus"
	"github.com/mtzanidakis/agency/internal/node"
	"github.com/mtzanidakis/agency/internal/registry"
	"github.com/mtzanidakis/agency/internal/scheduler"
	"github.com/mtzanidakis/agency/internal/store"
	"github.com/mtzanidakis/agency/internal/telegram"
	"github.com/mtzanidakis/agency/internal/vault"
	"github.com/mtzanidakis/agency/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("agency %s\n", version)
	case "gateway":
		err = runGateway()
	case "vault":
		err = runVault(os.Args[2:])
	case "backup":
		err = runBackup(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: agency <command>

Commands:
  gateway    Start the agency gateway service
  vault      Manage encrypted credentials
  backup     Archive the data directory
  restore    Restore a data directory archive
  version    Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting agency gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	natsSrv, err := natsbus.NewServer(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer natsSrv.Close()
	slog.Info("nats started", "port", natsSrv.Port())

	natsClient, err := natsbus.NewClient(natsSrv)
	if err != nil {
		return fmt.Errorf("nats client: %w", err)
	}
	defer natsClient.Close()

	b := bus.New(bus.WithArchive(db))

	// Node adapter: where agent nodes live.
	natsAdapter := node.NewNATSAdapter(natsClient, b)
	var adapter node.Adapter = natsAdapter
	var ctrMgr *container.Manager
	if cfg.Nodes.Backend == "docker" {
		ctrMgr, err = container.NewManager(cfg.Nodes, natsSrv.ClientURL())
		if err != nil {
			return fmt.Errorf("init container manager: %w", err)
		}
		if err := ctrMgr.CleanupStale(ctx); err != nil {
			slog.Warn("stale container cleanup failed", "error", err)
		}
		adapter = node.NewDockerAdapter(ctrMgr, natsAdapter)
	}
	b.SetTunnel(adapter)

	reg := registry.New(db, adapter)
	if err := reg.Initialize(); err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	b.SetTeams(reg)

	v := vault.New(cfg.Vault.Passphrase, db)

	// The GM and assistant run in-process under the instance ids the
	// registry assigns them, so bus traffic addressed by instance id
	// reaches them like any other agent.
	gmID, err := ensureRoleInstance(ctx, reg, model.RoleGM, "template-gm")
	if err != nil {
		return fmt.Errorf("provision gm: %w", err)
	}
	assistantID, err := ensureRoleInstance(ctx, reg, model.RoleAssistant, "template-assistant")
	if err != nil {
		return fmt.Errorf("provision assistant: %w", err)
	}

	g := gm.New(gmID, cfg.GM, reg, b)
	g.Start()
	defer g.Stop(context.Background())

	a := assistant.New(assistantID, gmID, b)
	a.SetTaskStore(db)
	a.Start()
	defer a.Stop()

	sched := scheduler.New(db, natsClient, cfg.Scheduler.PollInterval)
	registerJobs(sched, cfg, db, a, ctrMgr)
	go sched.Start(ctx)

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram, a)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		go bot.Start(ctx)
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	if cfg.Web.Enabled {
		srv := web.NewServer(db, b, natsClient, reg, g, a, v, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	if ctrMgr != nil {
		ctrMgr.StopAll(context.Background())
	}
	return nil
}

// ensureRoleInstance returns the existing instance for a role or
// provisions one from the builtin template on first boot.
func ensureRoleInstance(ctx context.Context, reg *registry.Registry, role model.AgentRole, templateID string) (string, error) {
	for _, inst := range reg.ListInstances(registry.InstanceFilter{}) {
		if inst.Config.Role == role {
			return inst.ID, nil
		}
	}
	return reg.CreateInstance(ctx, templateID, model.ConfigOverrides{CreatedBy: "system"})
}

// registerJobs wires the built-in maintenance jobs: periodic progress
// reports, message archive pruning and stale container cleanup.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, db *store.Store, a *assistant.Assistant, ctrMgr *container.Manager) {
	sched.RegisterExecutor("progress_report", func(ctx context.Context) error {
		for _, task := range a.ActiveTasks() {
			a.ReportProgress(model.ProgressUpdate{
				TaskID:      task.ID,
				CurrentStep: "still in progress",
			})
		}
		return nil
	})
	if err := sched.EnsureJob("job-progress-report", "progress report", "progress_report", cfg.Scheduler.ProgressReport); err != nil {
		slog.Error("failed to register progress report job", "error", err)
	}

	sched.RegisterExecutor("archive_prune", func(ctx context.Context) error {
		pruned, err := db.PruneArchive(time.Now().AddDate(0, 0, -30))
		if err != nil {
			return err
		}
		if pruned > 0 {
			slog.Info("pruned message archive", "rows", pruned)
		}
		return nil
	})
	if err := sched.EnsureJob("job-archive-prune", "archive prune", "archive_prune", `{"kind":"cron","cron_expr":"0 4 * * *"}`); err != nil {
		slog.Error("failed to register archive prune job", "error", err)
	}

	if ctrMgr != nil {
		sched.RegisterExecutor("node_cleanup", func(ctx context.Context) error {
			return ctrMgr.CleanupStale(ctx)
		})
		if err := sched.EnsureJob("job-node-cleanup", "node cleanup", "node_cleanup", `{"kind":"interval","interval_ms":1800000}`); err != nil {
			slog.Error("failed to register node cleanup job", "error", err)
		}
	}
}
