package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	extender "github.com/reglet-dev/npm-portlet-extender"
	"github.com/reglet-dev/npm-portlet-extender/bundlefs"
	"github.com/reglet-dev/npm-portlet-extender/config"
	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/metrics"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"github.com/reglet-dev/npm-portlet-extender/portlet"
	"github.com/reglet-dev/npm-portlet-extender/registry"
	"github.com/reglet-dev/npm-portlet-extender/server"
	"github.com/reglet-dev/npm-portlet-extender/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runFlags struct {
	configPath string
	modulesDir string
	listen     string
	logLevel   string
	logFormat  string
}

func runCmd(stderr io.Writer) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load bundles and serve portlets until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cfg.Log.NewLogger(stderr))
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&f.modulesDir, "modules", "", "Bundle directory (overrides modules.dir)")
	cmd.Flags().StringVar(&f.listen, "listen", "", "HTTP listen address, empty string from config disables the server")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")
	return cmd
}

// loadConfig reads the config file, when given, and applies the flags
// that were set on the command line.
func loadConfig(cmd *cobra.Command, f runFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.LoadFromFile(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("modules") {
		cfg.Modules.Dir = f.modulesDir
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = f.listen
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the wired components of a running extender.
type app struct {
	logger   *slog.Logger
	metrics  *metrics.Registry
	registry *registry.Registry
	ext      *extender.Extender
	toggle   *server.ParserToggle
	source   *bundlefs.Source
	server   *server.Server
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	m := metrics.NewRegistry()

	fw := module.NewFramework(
		module.WithLogger(logger),
		module.WithProvidedCapabilities(extender.ProvidedCapability()),
	)

	regOpts := []registry.RegistryOption{registry.WithLogger(logger)}
	if cfg.Registry.UniqueNames {
		regOpts = append(regOpts, registry.WithUniqueProperty(portlet.NameProperty))
	}
	reg := registry.NewRegistry(regOpts...)

	services := service.NewRegistry[jsonvalue.Parser]()
	ext := extender.New(fw, reg, services,
		extender.WithLogger(logger),
		extender.WithMetrics(m.Metrics),
		extender.WithDescriptorPath(cfg.Extender.DescriptorPath),
		extender.WithMaxDescriptorBytes(cfg.Extender.MaxDescriptorBytes),
		extender.WithExtension(cfg.Extender.Namespace, cfg.Extender.Name),
	)

	toggle := server.NewParserToggle(services, jsonvalue.NewParser(), "default")

	src := bundlefs.NewSource(cfg.Modules.Dir, fw,
		bundlefs.WithLogger(logger),
		bundlefs.WithMetrics(m.Metrics),
		bundlefs.WithDebounce(cfg.Modules.Debounce.Duration()),
	)

	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetricsHandler(m.Handler()),
	}
	if cfg.Server.Admin {
		srvOpts = append(srvOpts, server.WithAdmin(toggle))
	}

	return &app{
		logger:   logger,
		metrics:  m,
		registry: reg,
		ext:      ext,
		toggle:   toggle,
		source:   src,
		server:   server.New(ext, reg, srvOpts...),
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a := newApp(cfg, logger)

	if err := os.MkdirAll(cfg.Modules.Dir, 0o755); err != nil {
		return fmt.Errorf("create modules dir: %w", err)
	}

	a.ext.Start()
	defer a.ext.Stop()

	if cfg.Extender.JSONService {
		if err := a.toggle.SetEnabled(true); err != nil {
			return fmt.Errorf("publish json service: %w", err)
		}
	}

	defer func() {
		if err := a.source.Close(); err != nil {
			logger.Warn("failed to uninstall bundles", "error", err)
		}
	}()

	logger.Info("portlet extender ready",
		"version", Version,
		"modules", cfg.Modules.Dir,
		"listen", cfg.Server.Listen,
		"json_service", cfg.Extender.JSONService)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Modules.Watch {
		g.Go(func() error {
			return a.source.Watch(gctx)
		})
	} else {
		report, err := a.source.Sync(gctx)
		if err != nil {
			return fmt.Errorf("sync bundles: %w", err)
		}
		for dir, err := range report.Failed {
			logger.Warn("bundle not loaded", "bundle", dir, "error", err)
		}
	}

	if cfg.Server.Listen != "" {
		g.Go(func() error {
			return a.server.ListenAndServe(gctx, cfg.Server.Listen)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	logger.Info("portlet extender stopping", "registrations", a.ext.Registrations())
	return err
}
