package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/api"
	"github.com/claude-code-ui/agent-sessiond/src/clock"
	"github.com/claude-code-ui/agent-sessiond/src/config"
	"github.com/claude-code-ui/agent-sessiond/src/gitinfo"
	"github.com/claude-code-ui/agent-sessiond/src/hostterminal"
	"github.com/claude-code-ui/agent-sessiond/src/logtail"
	"github.com/claude-code-ui/agent-sessiond/src/mount"
	"github.com/claude-code-ui/agent-sessiond/src/publisher"
	"github.com/claude-code-ui/agent-sessiond/src/registry"
	"github.com/claude-code-ui/agent-sessiond/src/terminal"
)

// streamName names the publisher's stream directory under StateDir/streams,
// which holds its durable append log.
const streamName = "sessions.log"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("agent-sessiond: no .env file found, using process environment")
	}

	clearState := flag.Bool("clear", false, "remove the persisted session stream before starting")
	flag.Parse()

	cfg := config.Load()
	cfg.Clear = *clearState

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(logger)

	if err := run(cfg, entry); err != nil {
		entry.WithError(err).Fatal("agent-sessiond: fatal startup error")
	}
}

func run(cfg config.Config, log *logrus.Entry) error {
	if cfg.Clear {
		if err := os.RemoveAll(cfg.StateDir); err != nil {
			return fmt.Errorf("clear state dir: %w", err)
		}
		log.WithField("stateDir", cfg.StateDir).Info("agent-sessiond: cleared persisted state")
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(registry.Config{
		IdleTimeout: cfg.IdleTimeout,
		Clock:       clock.Real{},
		GitInfo:     gitinfo.Resolve,
	}, log.WithField("component", "registry"))
	defer reg.Stop()

	pub, err := publisher.Open(cfg.StateDir, streamName, cfg.MaxAge, log.WithField("component", "publisher"))
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	defer pub.Close()

	tailer, err := logtail.New(log.WithField("component", "logtail"))
	if err != nil {
		return fmt.Errorf("start log tailer: %w", err)
	}
	defer tailer.Stop()

	home, _ := os.UserHomeDir()
	go tailer.Run()
	tailer.AddRoot(logtail.WatchPath{Root: filepath.Join(home, ".claude", "projects"), Hostname: cfg.Hostname})

	go bridgeTailerToRegistry(tailer, reg, cfg.Hostname)
	go bridgeRegistryToPublisher(reg, pub)
	go reg.RunReevaluator(ctx)

	mounts, err := mount.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open mount store: %w", err)
	}

	termMgr := terminal.NewManager("tmux", "claude", log.WithField("component", "terminal"))
	defer termMgr.CloseAll()
	defer termMgr.Stop()
	go termMgr.RunIdleSweeper(ctx)

	var termCap hostterminal.Capability
	switch cfg.Terminal {
	case config.TerminalITerm2:
		termCap = hostterminal.NewMacOSiTerm()
	default:
		termCap = hostterminal.NewDisabled()
	}

	router, err := api.SetupRouter(api.Deps{
		Registry:               reg,
		Publisher:              pub,
		Terminal:               termMgr,
		Machines:               mounts,
		HostTerm:               termCap,
		AgentCLIBin:            "claude",
		Hostname:               cfg.Hostname,
		AnthropicAPIKey:        cfg.AnthropicAPIKey,
		Log:                    log.WithField("component", "api"),
		DisableRequestLogging:  cfg.DisableRequestLogging,
		EnableProcessingTiming: cfg.EnableProcessingTiming,
	})
	if err != nil {
		return fmt.Errorf("setup router: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		log.WithField("addr", addr).Info("agent-sessiond: listening")
		errCh <- router.Run(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("agent-sessiond: shutting down")
		cancel()
	}
	return nil
}

// bridgeTailerToRegistry feeds every FileEvent the tailer emits into the
// registry's per-session dispatcher (spec.md §4.4 entrypoint).
func bridgeTailerToRegistry(t *logtail.Tailer, reg *registry.Registry, hostname string) {
	for ev := range t.Events() {
		reg.HandleFileEvent(ev, hostname)
	}
}

// bridgeRegistryToPublisher relays every registry Event onward to the
// publisher's durable append log and live subscribers (spec.md §4.5).
func bridgeRegistryToPublisher(reg *registry.Registry, pub *publisher.Publisher) {
	for ev := range reg.Events() {
		pub.HandleEvent(ev)
	}
}
