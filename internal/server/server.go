package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/config"
	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/home"
	"github.com/jackzampolin/rfptriage/internal/index"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/schema"
	"github.com/jackzampolin/rfptriage/internal/server/endpoints"
	"github.com/jackzampolin/rfptriage/internal/store"
	"github.com/jackzampolin/rfptriage/internal/svcctx"
)

const (
	defraReadyTimeout = 60 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Server is the main rfptriage HTTP server.
// When no external DefraDB URL is configured it manages the DefraDB
// container, starting it on server start and stopping it on shutdown.
type Server struct {
	httpServer   *http.Server
	listener     net.Listener
	defraManager *defra.DockerManager
	registry     *providers.Registry
	orchestrator *pipeline.Orchestrator
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger

	// Set by Start once DefraDB is ready.
	defraClient *defra.Client
	sink        *defra.Sink
	store       *store.Store
	index       *index.Index
	redis       *redis.Client

	// services is swapped whole so requests never see a half-built set.
	services atomic.Pointer[svcctx.Services]

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host and Port override the server section of the config file.
	Host string
	Port string
	// Listener, when set, is served instead of binding Host:Port.
	Listener net.Listener
	// Home holds DefraDB data and spooled uploads.
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	c := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = c.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = c.Server.Port
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		listener:  cfg.Listener,
	}

	if c.Defra.URL == "" {
		dockerCfg := defra.DockerConfig{
			ContainerName: c.Defra.ContainerName,
			Image:         c.Defra.Image,
			HostPort:      c.Defra.Port,
		}
		if cfg.Home != nil {
			dockerCfg.DataPath = cfg.Home.DefraPath()
		}
		m, err := defra.NewDockerManager(dockerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create defra manager: %w", err)
		}
		s.defraManager = m
	}

	// Create provider registry
	s.registry = providers.NewRegistry()
	s.registry.SetLogger(cfg.Logger)
	s.registry.Reload(c.ToProviderRegistryConfig())

	deps, err := PipelineDeps(c, s.registry, cfg.Logger)
	if err != nil {
		return nil, err
	}
	s.orchestrator = pipeline.New(deps, c.PipelineConfig(cfg.Logger))

	// Watch for config changes
	cfg.ConfigManager.OnChange(s.reload)

	s.services.Store(s.buildServices())

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DefraManager: s.defraManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	// No read or write deadline: uploads run to hundreds of MB and analyze
	// streams for as long as the run takes.
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           s.withServices(mux),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// reload applies a changed config to the provider registry and the
// pipeline. Runs already in flight keep the collaborators they started with.
func (s *Server) reload(c *config.Config) {
	s.registry.Reload(c.ToProviderRegistryConfig())

	deps, err := PipelineDeps(c, s.registry, s.logger)
	if err != nil {
		s.logger.Error("config reload rejected, keeping previous pipeline", "error", err)
		return
	}
	s.mu.RLock()
	deps.Store, deps.Index = s.runStore(), s.indexer()
	s.mu.RUnlock()
	s.orchestrator.Update(deps)
	s.logger.Info("pipeline reloaded from config")
}

// Start starts DefraDB and the HTTP server.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.startBackends(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Info("starting HTTP server", "addr", s.listener.Addr().String())
			err = s.httpServer.Serve(s.listener)
		} else {
			s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// startBackends brings up DefraDB, the write sink, the run store and the
// optional search index, then hands them to the pipeline.
func (s *Server) startBackends(ctx context.Context) error {
	c := s.configMgr.Get()

	url := c.Defra.URL
	if s.defraManager != nil {
		if err := s.defraManager.ValidateExisting(ctx); err != nil {
			return fmt.Errorf("existing DefraDB container incompatible: %w", err)
		}
		s.logger.Info("starting DefraDB")
		if err := s.defraManager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start DefraDB: %w", err)
		}
		url = s.defraManager.URL()
	}

	client := defra.NewClient(url)
	if err := defra.WaitHealthy(ctx, client, defraReadyTimeout); err != nil {
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", client.URL())

	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, client, s.logger); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// The sink outlives ctx so Stop can flush after a shutdown signal.
	sink := defra.NewSink(defra.SinkConfig{
		Client:    client,
		BatchSize: c.Defra.BatchSize,
		Logger:    s.logger,
	})
	sink.Start(context.Background())

	s.mu.Lock()
	s.defraClient = client
	s.sink = sink
	s.store = store.New(store.Config{Client: client, Sink: sink, Logger: s.logger})
	s.mu.Unlock()

	if c.Redis.Enabled {
		s.startIndex(ctx, c)
	}

	s.mu.RLock()
	deps := s.orchestrator.Deps()
	deps.Store, deps.Index = s.runStore(), s.indexer()
	s.mu.RUnlock()
	s.orchestrator.Update(deps)

	s.services.Store(s.buildServices())
	return nil
}

// startIndex connects to Redis. The index is optional, so a failed ping
// only disables search.
func (s *Server) startIndex(ctx context.Context, c *config.Config) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: config.ResolveEnvVars(c.Redis.Password),
		DB:       c.Redis.DB,
	})
	ix := index.New(index.Config{
		Client: rdb,
		Prefix: c.Redis.Prefix,
		TTL:    c.RedisTTL(),
		Logger: s.logger,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ix.Ping(pingCtx); err != nil {
		s.logger.Warn("redis unavailable, search disabled", "addr", c.Redis.Addr, "error", err)
		rdb.Close()
		return
	}
	s.logger.Info("search index ready", "addr", c.Redis.Addr)

	s.mu.Lock()
	s.redis = rdb
	s.index = ix
	s.mu.Unlock()
}

// runStore and indexer return typed nils as untyped interface nils so the
// orchestrator's optional checks work. Callers hold s.mu.
func (s *Server) runStore() pipeline.RunStore {
	if s.store == nil {
		return nil
	}
	return s.store
}

func (s *Server) indexer() pipeline.Indexer {
	if s.index == nil {
		return nil
	}
	return s.index
}

func (s *Server) buildServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &svcctx.Services{
		Config:       s.configMgr,
		DefraClient:  s.defraClient,
		DefraSink:    s.sink,
		Docker:       s.defraManager,
		Store:        s.store,
		Index:        s.index,
		Registry:     s.registry,
		Orchestrator: s.orchestrator,
		Logger:       s.logger,
		Home:         s.home,
	}
}

// shutdown performs graceful shutdown of the HTTP server and backends.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Let background indexing from finished runs land before closing Redis.
	s.orchestrator.Wait()

	s.mu.Lock()
	sink, rdb := s.sink, s.redis
	s.sink, s.redis = nil, nil
	s.mu.Unlock()

	if sink != nil {
		sink.Stop()
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	if s.defraManager != nil {
		s.logger.Info("stopping DefraDB")
		if err := s.defraManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("DefraDB stop error", "error", err)
		}
		if err := s.defraManager.Close(); err != nil {
			s.logger.Error("DefraDB manager close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// DefraClient returns the DefraDB client.
// Returns nil if the server hasn't started yet.
func (s *Server) DefraClient() *defra.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defraClient
}

// Orchestrator returns the pipeline orchestrator.
func (s *Server) Orchestrator() *pipeline.Orchestrator {
	return s.orchestrator
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.services.Load(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until DefraDB and the run store are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc := s.services.Load(); svc == nil || svc.Store == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
