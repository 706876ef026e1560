// Command gatewayd runs the IIoT gateway core: it loads configuration,
// wires Manager to a transport binding, registers the builtin plugins, and
// blocks until SIGINT/SIGTERM, shutting down gracefully.
//
// Grounded on the teacher's cmd/main.go: same getEnv-overridden
// configuration shape (carried into internal/config), the same
// signal.Notify(SIGINT, SIGTERM) + timeout-bounded graceful shutdown
// pattern, stripped of every HTTP/Gin/business-logic concern that has no
// IIoT referent.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmesh/iiotgw/internal/builtin"
	"github.com/fieldmesh/iiotgw/internal/config"
	"github.com/fieldmesh/iiotgw/internal/manager"
	"github.com/fieldmesh/iiotgw/internal/node"
	"github.com/fieldmesh/iiotgw/internal/pluginloader"
	"github.com/fieldmesh/iiotgw/internal/transport"
)

func main() {
	configPath := os.Getenv("GATEWAY_CONFIG_FILE")
	cfg, err := config.Load(configPath)
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("component", "gatewayd").Logger()

	tr, err := transport.NewNATSTransport(cfg.NATS, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transport")
	}
	defer tr.Close()

	mgr := manager.New(pluginloader.DefaultLoader{}, tr, logger)

	if err := registerBuiltinPlugins(mgr, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to register builtin plugins")
	}

	if err := loadTemplates(mgr, cfg.TemplateDir, logger); err != nil {
		logger.Warn().Err(err).Msg("failed to load template directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info().Str("plugin_dir", cfg.PluginDir).Bool("nats_enabled", tr.IsEnabled()).Msg("gatewayd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal, starting graceful shutdown")

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdown(shutdownCtx, mgr, logger)
	cancel()
	logger.Info().Msg("gatewayd stopped")
}

// registerBuiltinPlugins wires the simulator driver and log-sink app built
// into this binary (SPEC_FULL.md §4.4 supplemental), so a fresh gateway is
// immediately runnable without any dynamic plugin libraries on disk.
func registerBuiltinPlugins(mgr *manager.Manager, logger zerolog.Logger) error {
	if err := mgr.AddBuiltinPlugin(builtin.SimulatorDescriptor, builtin.NewSimulatorInstance, builtin.CloseSimulatorInstance); err != nil {
		return err
	}
	if err := mgr.AddBuiltinPlugin(builtin.LogSinkDescriptor, builtin.NewLogSinkFactory(logger), builtin.CloseLogSinkInstance); err != nil {
		return err
	}
	return nil
}

// loadTemplates scans dir for *.yaml template definitions and registers
// each with mgr (SPEC_FULL.md §4.3 supplemental). A missing or empty dir is
// not an error.
func loadTemplates(mgr *manager.Manager, dir string, logger zerolog.Logger) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := dir + "/" + entry.Name()
		spec, err := config.LoadTemplateFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("skipping invalid template file")
			continue
		}
		if err := mgr.AddTemplate(spec); err != nil {
			logger.Warn().Err(err).Str("template", spec.Name).Msg("failed to register template")
			continue
		}
		logger.Info().Str("template", spec.Name).Str("file", path).Msg("template loaded")
	}
	return nil
}

// shutdown tears down every node in reverse-ish dependency order: no
// explicit ordering between nodes is required (DelNode already cancels
// each node's own worker before releasing its instance), so this simply
// visits every known node. Bounded by ctx's deadline, mirroring the
// teacher's srv.Shutdown(ctx) pattern.
func shutdown(ctx context.Context, mgr *manager.Manager, logger zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		for _, n := range mgr.GetNodes(node.Filter{}) {
			if err := mgr.DelNode(n.Name); err != nil {
				logger.Warn().Err(err).Str("node", n.Name).Msg("failed to remove node during shutdown")
			}
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all nodes stopped cleanly")
	case <-ctx.Done():
		logger.Warn().Msg("shutdown timed out before all nodes stopped")
	}
}
