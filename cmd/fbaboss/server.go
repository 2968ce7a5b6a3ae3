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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BlockchainHB/fbabossdiscord/internal/answer"
	"github.com/BlockchainHB/fbabossdiscord/internal/api"
	"github.com/BlockchainHB/fbabossdiscord/internal/composer"
	"github.com/BlockchainHB/fbabossdiscord/internal/config"
	"github.com/BlockchainHB/fbabossdiscord/internal/conversation"
	"github.com/BlockchainHB/fbabossdiscord/internal/engine"
	"github.com/BlockchainHB/fbabossdiscord/internal/ingest"
	"github.com/BlockchainHB/fbabossdiscord/internal/namespace"
	"github.com/BlockchainHB/fbabossdiscord/internal/pipeline"
	"github.com/BlockchainHB/fbabossdiscord/internal/queue"
	"github.com/BlockchainHB/fbabossdiscord/internal/reranking"
	"github.com/BlockchainHB/fbabossdiscord/internal/retrieval"
	"github.com/BlockchainHB/fbabossdiscord/internal/storage"
)

var startMCP bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the fbaboss server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running fbaboss server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fbaboss system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&startMCP, "mcp", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "fbaboss.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// loadCatalog returns the namespace catalog named by config, or the
// built-in course catalog.
func loadCatalog(cfg config.Config) (*namespace.Catalog, error) {
	return namespace.LoadCatalog(cfg.Retrieval.NamespacesFile, cfg.Retrieval.DefaultNamespace)
}

// services is the wired application: the answering pipeline behind the job
// queue, plus ingestion into the vector store.
type services struct {
	store    *storage.Store
	catalog  *namespace.Catalog
	embedder *retrieval.Embedder
	vectors  *retrieval.SQLiteStore
	searcher *retrieval.Searcher
	queue    *queue.Queue
	ingest   *ingest.Service
	worker   *ingest.Worker
}

func buildServices(cfg config.Config, eng engine.Engine, store *storage.Store) (*services, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	embedder := retrieval.NewEmbedder(eng, cfg.Engine.EmbedModel)
	vectors := retrieval.NewSQLiteStore(store.DB())
	searcher := retrieval.NewSearcher(vectors)

	orch := pipeline.New(pipeline.Deps{
		Router:   namespace.NewRouter(eng, cfg.Engine.FastModel, catalog),
		Embedder: embedder,
		Searcher: searcher,
		Reranker: reranking.New(eng, cfg.Engine.FastModel, cfg.Retrieval.Rerank, cfg.Retrieval.RerankTimeout, cfg.Retrieval.RerankThreshold, 0),
		Answerer: answer.NewGenerator(eng, cfg.Engine.ChatModel, cfg.Engine.FastModel),
		History:  conversation.NewHistory(conversation.NewSQLStore(store), cfg.QA.HistoryLimit),
		Usage:    store,
		Composer: composer.New(0),
	}, pipeline.Options{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.QA.MaxAttempts,
			Backoff:     pipeline.ExponentialBackoff(cfg.QA.BackoffBase, cfg.QA.BackoffCap),
		},
		ImproveRetry: pipeline.RetryPolicy{
			MaxAttempts: cfg.QA.ImproveAttempts,
			Backoff:     pipeline.FixedBackoff(cfg.QA.ImproveDelay),
		},
	})

	q := queue.New(orch, queue.Options{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		JobTimeout:   cfg.Queue.JobTimeout,
		MaxRequests:  cfg.RateLimit.MaxRequests,
		Window:       cfg.RateLimit.Window,
		Exempt:       cfg.RateLimit.Exempt(),
		OnResult:     logResult,
	})

	return &services{
		store:    store,
		catalog:  catalog,
		embedder: embedder,
		vectors:  vectors,
		searcher: searcher,
		queue:    q,
		ingest:   ingest.NewService(store, catalog, &http.Client{Timeout: 15 * time.Second}),
		worker:   ingest.NewWorker(store, embedder, vectors, cfg.Queue.PollInterval),
	}, nil
}

func logResult(r queue.Result) {
	if r.Err != nil {
		slog.Warn("question job failed", "job_id", r.JobID, "user_id", r.UserID, "error", r.Err)
		return
	}
	if r.Result == nil {
		return
	}
	slog.Info("question answered",
		"job_id", r.JobID,
		"user_id", r.UserID,
		"confidence", r.Result.Confidence,
		"attempts", r.Result.Attempts,
		"namespaces", r.Result.Namespaces,
		"duration", r.Result.ProcessingTime,
	)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "fbaboss version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("fbaboss is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("fbaboss is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Detect(engine.DetectConfig{
		Backend: cfg.Engine.Backend,
		BaseURL: cfg.Engine.BaseURL,
		APIKey:  cfg.Engine.APIKey,
	})
	if err != nil {
		return fmt.Errorf("detecting generation backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, os.Stderr, cfg.Engine.ChatModel, cfg.Engine.FastModel, cfg.Engine.EmbedModel); err != nil {
		return err
	}

	printStep("Opening knowledge base in %s", cfg.Storage.DataDir)
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	svc, err := buildServices(cfg, eng, store)
	if err != nil {
		return err
	}
	defer svc.queue.Close()
	slog.Info("namespace catalog loaded", "namespaces", len(svc.catalog.List()), "default", svc.catalog.Default())

	handler := api.NewHandler(api.Deps{
		Store:   store,
		Queue:   svc.queue,
		Ingest:  svc.ingest,
		Catalog: svc.catalog,
		Vectors: svc.vectors,
		Token:   apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.queue.Start(gctx)
		return nil
	})
	g.Go(func() error {
		svc.worker.Run(gctx)
		return nil
	})

	if startMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Queue:    svc.queue,
			Embedder: svc.embedder,
			Searcher: svc.searcher,
			Catalog:  svc.catalog,
			Ingest:   svc.ingest,
			MinScore: cfg.Retrieval.MinScore,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		printSuccess("fbaboss listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("fbaboss is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop fbaboss (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to fbaboss (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := httpClient.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		running = resp.StatusCode == http.StatusOK
		if running {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	eng, err := engine.Detect(engine.DetectConfig{
		Backend: cfg.Engine.Backend,
		BaseURL: cfg.Engine.BaseURL,
		APIKey:  cfg.Engine.APIKey,
	})
	if err != nil {
		printStatus("Backend", "%v", err)
	} else {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if eng.IsRunning(checkCtx) {
			printStatus("Backend", "%s reachable at %s", cfg.Engine.Backend, cfg.Engine.BaseURL)
		} else {
			printStatus("Backend", "%s not reachable at %s", cfg.Engine.Backend, cfg.Engine.BaseURL)
		}
		cancel()
	}

	printStatus("Chat model", "%s", cfg.Engine.ChatModel)
	printStatus("Fast model", "%s", cfg.Engine.FastModel)
	printStatus("Embed model", "%s", cfg.Engine.EmbedModel)

	if running {
		if c, err := newAPIClient(); err == nil {
			c.httpClient = httpClient
			printServerStats(context.Background(), c)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

type usageSummary struct {
	Since            time.Time `json:"since"`
	Questions        int       `json:"questions"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	EmbeddingTokens  int       `json:"embedding_tokens"`
	AvgLatencyMS     float64   `json:"avg_latency_ms"`
	AvgConfidence    float64   `json:"avg_confidence"`
}

func printServerStats(ctx context.Context, c *apiClient) {
	var stats queue.Stats
	if c.get(ctx, "/v1/queue", &stats) == nil {
		printStatus("Queue", "%d waiting, %d active", stats.Waiting, stats.Active)
	}
	var usage usageSummary
	if c.get(ctx, "/v1/usage?hours=24", &usage) == nil {
		printStatus("Last 24h", "%d questions, %d tokens, avg confidence %.2f",
			usage.Questions, usage.PromptTokens+usage.CompletionTokens+usage.EmbeddingTokens, usage.AvgConfidence)
	}
}
