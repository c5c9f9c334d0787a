// The module's go line predates method and wildcard ServeMux patterns, which
// the web monitor registers; this setting turns them on.
//go:debug httpmuxgo121=0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/commands"
	"github.com/mtzanidakis/taskmaster/internal/config"
	"github.com/mtzanidakis/taskmaster/internal/journal"
	"github.com/mtzanidakis/taskmaster/internal/natsbus"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
	"github.com/mtzanidakis/taskmaster/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("taskmasterd %s\n", version)
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: taskmasterd <command>\n\nCommands:\n  serve      Start the taskmaster host\n  backup     Archive a project's .taskmaster directory\n  version    Print version\n")
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting taskmaster host", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("start nats bus: %w", err)
	}
	defer bus.Close()

	nc, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("nats client: %w", err)
	}
	defer nc.Close()

	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j, err = journal.New(cfg.Journal.Path, logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
	}

	sinks := broker.MultiSink{natsbus.NewEventSink(nc, logger)}
	if j != nil {
		sinks = append(sinks, j)
	}

	ch := channel.NewLocal(logger)
	registry := broker.NewRegistry()
	savers := broker.NewSaverRegistry()
	wrapper := broker.NewWrapper(registry, ch, savers, sinks, cfg.Store.DefaultTag, logger)

	if err := wrapper.Register(broker.Tool()); err != nil {
		return fmt.Errorf("register broker tool: %w", err)
	}

	stores := taskstore.NewCache(cfg.Store.DefaultTag)
	roles := provider.NewRoles(cfg.Roles, provider.NewDelegating())
	if err := commands.New(stores, roles).RegisterAll(wrapper, savers); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	slog.Info("tools registered", "tools", ch.Names())

	srv := channel.NewNATSServer(ch, nc, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start channel server: %w", err)
	}
	defer srv.Stop()

	reaper := broker.NewReaper(wrapper, cfg.Broker.DelegationTTL, cfg.Broker.ReapInterval, logger)
	go reaper.Start(ctx)

	if cfg.Web.Enabled {
		webSrv := web.NewServer(registry, j, nc, cfg.Web, version)
		go func() {
			if err := webSrv.Start(ctx); err != nil {
				slog.Error("web monitor failed", "error", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")
	cancel()
	wrapper.Drain()
	return nil
}
