package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/dmmcquay/chess-study/internal/cache"
	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/engine"
	"github.com/dmmcquay/chess-study/internal/health"
	"github.com/dmmcquay/chess-study/internal/logging"
	mcptools "github.com/dmmcquay/chess-study/internal/mcp"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/pgn"
	"github.com/dmmcquay/chess-study/internal/ratelimit"
	httpserver "github.com/dmmcquay/chess-study/internal/server"
	"github.com/dmmcquay/chess-study/internal/shutdown"
	"github.com/dmmcquay/chess-study/internal/study"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		stdio   bool
		pgnFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the study session over MCP (stdio) and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, stdio, pgnFile)
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", true, "Serve MCP tools on stdin/stdout")
	cmd.Flags().StringVar(&pgnFile, "pgn", "", "PGN file to load on startup")

	return cmd
}

// engineStack is the engine side of the service. Every field is nil when
// no engine binary could be found.
type engineStack struct {
	process    *engine.Process
	supervisor *engine.Supervisor
	bridge     *engine.Bridge
}

func newEngineStack(cfg *config.Config, logger logging.ContextLogger, prom *metrics.PrometheusCollector, stats *metrics.Collector) *engineStack {
	logger.Info("Detecting chess engine...")
	detection, err := engine.DetectEngine(cfg.Engine.BinaryPath)
	if err != nil {
		logger.Warn("No chess engine found, analysis is disabled: %v", err)
		logger.Info("\n%s", engine.GetInstallationInstructions())
		return &engineStack{}
	}
	logger.Info("Found chess engine: %s", detection.BinaryPath)

	engineCfg := cfg.Engine
	engineCfg.BinaryPath = detection.BinaryPath
	process := engine.NewProcess(&engineCfg, logger)

	supervisor := engine.NewSupervisor(process, logger, time.Duration(cfg.Engine.PingTimeout*float64(time.Second)))
	supervisor.SetMetrics(prom, stats)

	bridge := engine.NewBridge(process, cfg.Engine.Depth, logger,
		engine.WithCache(cache.NewManager(&cfg.Cache, logger)),
		engine.WithMetrics(prom, stats),
		engine.WithStarter(supervisor.Ensure),
	)
	// A fresh engine answers nothing from before the restart
	supervisor.OnRestart(bridge.Reset)

	return &engineStack{process: process, supervisor: supervisor, bridge: bridge}
}

func runServe(ctx context.Context, cfg *config.Config, stdio bool, pgnFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()
	logger.Info("Starting chess-study version %s (commit: %s, built: %s)", cfg.Server.Version, GitCommit, BuildTime)

	prom := metrics.NewPrometheusCollector()
	stats := metrics.NewCollector()
	shutdowns := shutdown.NewManager(logger)

	eng := newEngineStack(cfg, logger, prom, stats)

	sessionOpts := []study.Option{
		study.WithMaxGames(cfg.Study.MaxGames),
		study.WithDefaultPromotion(cfg.Study.DefaultPromotion),
		study.WithFollowNavigation(cfg.Engine.FollowNavigation),
		study.WithMetrics(prom),
	}
	if eng.bridge != nil {
		sessionOpts = append(sessionOpts, study.WithAnalyzer(eng.bridge))
	}
	session := study.NewSession(logger, sessionOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	checker := health.NewChecker(logger, cfg.Server.Version)
	if eng.bridge != nil {
		eng.bridge.OnEvent(session.HandleEngineEvent)
		go eng.bridge.Run(runCtx)

		shutdowns.Register("engine", func(context.Context) error {
			return eng.supervisor.Stop()
		})
		if cfg.Engine.AutoStart {
			if err := eng.supervisor.Start(runCtx); err != nil {
				return fmt.Errorf("failed to start engine supervisor: %w", err)
			}
		}
		// A lazily started engine is not running until the first analysis
		checker.Register("engine", cfg.Engine.AutoStart, health.PingCheck("engine", eng.process))
	}
	shutdowns.Register("engine bridge", func(context.Context) error {
		cancel()
		return nil
	})

	if pgnFile != "" {
		src, err := pgn.ReadFile(pgnFile)
		if err != nil {
			return err
		}
		if _, err := session.Dispatch(runCtx, study.Request{Command: study.CmdLoadPGN, Text: src.Text}); err != nil {
			return err
		}
		logger.Info("Loaded PGN file", "path", src.Path, "size", src.Size.String())
	}

	if cfg.Server.EnableHTTP {
		httpServer := httpserver.NewHTTPServer(cfg.Server.HTTPAddr, logger, checker, session, prom)
		if err := httpServer.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		shutdowns.Register("http server", httpServer.Stop)
	}

	rateLimiter := ratelimit.NewLimiter(&cfg.RateLimit, logger)
	shutdowns.Register("rate limiter", func(context.Context) error {
		rateLimiter.Close()
		return nil
	})

	shutdowns.HandleSignals(ctx)

	if !stdio {
		logger.Info("chess-study ready (HTTP only)")
		shutdowns.Wait()
		return nil
	}

	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithLogging(),
	)

	middleware := mcptools.NewMiddleware(logger, stats, rateLimiter)
	middleware.SetPrometheus(prom)

	var status mcptools.EngineStatus
	if eng.bridge != nil {
		status = eng.bridge
	}
	toolsHandler := mcptools.NewToolsHandler(session, status, logger)
	toolsHandler.SetMiddleware(middleware)
	toolsHandler.SetHealthChecker(checker)
	toolsHandler.SetStats(stats)
	toolsHandler.RegisterTools(mcpServer)

	logger.Info("chess-study MCP server ready")

	done := make(chan error, 1)
	go func() {
		done <- server.ServeStdio(mcpServer)
	}()

	var serveErr error
	select {
	case serveErr = <-done:
		if serveErr != nil {
			logger.Error("MCP server error", "error", serveErr)
		}
	case <-shutdowns.Done():
		logger.Info("Server stopped by shutdown")
	}

	if err := shutdowns.Shutdown(shutdown.DefaultTimeout); err != nil {
		return err
	}
	return serveErr
}
