package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/sigamony/DataViz/internal/api"
	"github.com/sigamony/DataViz/internal/codegen"
	"github.com/sigamony/DataViz/internal/composer"
	"github.com/sigamony/DataViz/internal/config"
	"github.com/sigamony/DataViz/internal/dataset"
	"github.com/sigamony/DataViz/internal/engine"
	"github.com/sigamony/DataViz/internal/intent"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/pipeline"
	"github.com/sigamony/DataViz/internal/render"
	"github.com/sigamony/DataViz/internal/respond"
	"github.com/sigamony/DataViz/internal/sandbox"
	"github.com/sigamony/DataViz/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		skipCheck, _ := cmd.Flags().GetBool("skip-model-check")
		return runServer(cmd.Context(), mcpStdio, skipCheck)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
	serveCmd.Flags().Bool("skip-model-check", false, "do not verify or pull the model at startup")
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))
}

// app is everything the HTTP and MCP surfaces share.
type app struct {
	deps   api.Deps
	memory memory.Store
	close  func()
}

func buildApp(ctx context.Context, cfg config.Config, skipCheck bool) (*app, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.LLM.Backend,
		OllamaBaseURL: cfg.LLM.OllamaBaseURL,
		APIBaseURL:    cfg.LLM.APIBaseURL,
		APIKey:        cfg.LLM.APIKey,
		Temperature:   cfg.LLM.Temperature,
		ContextTokens: cfg.LLM.MaxContextTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if !skipCheck {
		if err := engine.EnsureReady(ctx, eng, []string{cfg.LLM.Model}, os.Stderr); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	closers := []func() error{store.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("closing resource", "error", err)
			}
		}
	}

	mem, err := openMemory(ctx, cfg.Memory, store)
	if err != nil {
		closeAll()
		return nil, err
	}
	if c, ok := mem.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}

	llm := engine.NewCompleter(eng, cfg.LLM.Model)
	comp := composer.New(cfg.LLM.MaxContextTokens)
	orch := pipeline.New(
		store,
		dataset.NewFileSource(store),
		mem,
		intent.NewClassifier(llm, comp, cfg.LLM.ClassifyTimeout),
		respond.New(llm, comp),
		codegen.New(llm, comp, render.Styles()),
		sandbox.New(cfg.Executor.Timeout, render.Limits{
			MaxFigures: cfg.Executor.MaxFigures,
			MaxPoints:  cfg.Executor.MaxPoints,
		}),
	)

	return &app{
		deps: api.Deps{
			Datasets:      store,
			Memory:        mem,
			Asker:         orch,
			UploadDir:     cfg.Storage.UploadDir,
			MaxUploadSize: int64(cfg.Server.MaxUploadMB) << 20,
			Token:         cfg.Server.Token,
		},
		memory: mem,
		close:  closeAll,
	}, nil
}

func openMemory(ctx context.Context, cfg config.MemoryConfig, store *storage.Store) (memory.Store, error) {
	switch cfg.Backend {
	case config.MemorySQLite:
		return memory.NewSQLite(store), nil
	case config.MemoryRedis:
		r, err := memory.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return r, nil
	default:
		return memory.NewInMemory(), nil
	}
}

func runServer(parent context.Context, mcpStdio, skipCheck bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	slog.Info("starting dataviz", "version", version, "llm_backend", cfg.LLM.Backend, "model", cfg.LLM.Model, "memory", cfg.Memory.Backend)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, skipCheck)
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	srv := &http.Server{
		Handler:           api.NewHandler(a.deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		memory.NewReaper(a.memory, cfg.Memory.ReapInterval).Run(gctx)
		return nil
	})

	if mcpStdio {
		g.Go(func() error {
			stdio := server.NewStdioServer(api.NewMCPServer(a.deps, version))
			slog.Info("MCP server started (stdio transport)")
			if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp stdio: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	resp, err := client.get(ctx, "/health")
	switch {
	case err != nil:
		printStatus("Server", "stopped (%s)", client.baseURL)
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "running at %s", client.baseURL)
		var list struct {
			Datasets []api.DatasetView `json:"datasets"`
		}
		if err := client.call(ctx, http.MethodGet, "/datasets?limit=50", nil, &list); err != nil {
			printWarning("listing datasets: %v", err)
		} else {
			printStatus("Datasets", "%s", countLabel(len(list.Datasets), 50))
		}
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.LLM.Backend,
		OllamaBaseURL: cfg.LLM.OllamaBaseURL,
		APIBaseURL:    cfg.LLM.APIBaseURL,
		APIKey:        cfg.LLM.APIKey,
		Temperature:   cfg.LLM.Temperature,
		ContextTokens: cfg.LLM.MaxContextTokens,
	})
	if err != nil {
		printStatus("LLM", "misconfigured: %v", err)
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		switch {
		case !eng.IsRunning(checkCtx):
			printStatus("LLM", "not reachable")
		case eng.HasModel(checkCtx, cfg.LLM.Model):
			printStatus("LLM", "ready (%s)", cfg.LLM.Model)
		default:
			printStatus("LLM", "reachable, model %s missing", cfg.LLM.Model)
		}
	}

	printStatus("Memory", "%s", cfg.Memory.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
