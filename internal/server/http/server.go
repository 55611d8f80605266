package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webreplay/internal/browser"
	"webreplay/internal/codegen"
	"webreplay/internal/config"
	"webreplay/internal/logging"
	"webreplay/internal/recording"
	"webreplay/internal/replay"
)

// Server exposes the replay pipeline over HTTP: session listing,
// synchronous replay, an SSE streaming variant, recording import and
// code generation.
type Server struct {
	cfg     *config.Config
	store   recording.Store
	pool    *browser.Pool
	codegen *codegen.Service
	engine  *gin.Engine
	logger  *logging.Logger

	// engineFactory builds the replay engine for one request; swapped
	// out in tests to avoid a live browser.
	engineFactory func(headless bool, secrets map[string]string) *replay.Engine

	httpServer *http.Server
}

// New wires the server. store and pool are injected so tests can run
// against fakes and a browserless store.
func New(cfg *config.Config, store recording.Store, pool *browser.Pool, codegenSvc *codegen.Service) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Cache-Control")
	engine.Use(cors.New(corsConfig))

	s := &Server{
		cfg:     cfg,
		store:   store,
		pool:    pool,
		codegen: codegenSvc,
		engine:  engine,
		logger:  logging.NewComponentLogger("HTTPServer"),
	}
	s.engineFactory = s.newEngine
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.GET("/replay/sessions", s.handleListSessions)
	s.engine.GET("/replay/:session_id/info", s.handleSessionInfo)
	s.engine.POST("/replay/:session_id", s.handleReplay)
	s.engine.DELETE("/replay/:session_id", s.handleDeleteSession)
	s.engine.POST("/stream/replay/:session_id", s.handleStreamReplay)

	s.engine.POST("/replay/import", s.handleImport)
	s.engine.POST("/codegen/:session_id", s.handleCodegen)
}

// Handler returns the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Listening on %s", s.cfg.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

// acquireFunc builds the engine's session source for one run,
// honoring a per-request headless override on top of the configured
// options.
func (s *Server) acquireFunc(headless bool) replay.AcquireFunc {
	opts := browser.Options{
		Headless:       headless,
		CDPURL:         s.cfg.CDPURL,
		ChromePath:     s.cfg.ChromePath,
		UserDataDir:    s.cfg.UserDataDir,
		StartupTimeout: s.cfg.StartupTimeout,
	}
	return func(ctx context.Context) (replay.Session, error) {
		return s.pool.AcquireWith(ctx, opts)
	}
}

// newEngine assembles a replay engine for one request. Engines are
// cheap; per-request construction keeps request secrets out of shared
// state.
func (s *Server) newEngine(headless bool, secrets map[string]string) *replay.Engine {
	executor := replay.NewExecutor()
	executor.ResolveTimeout = s.cfg.ResolveTimeout
	executor.ActionTimeout = s.cfg.ActionTimeout
	executor.Secrets = mergeSecrets(s.cfg.Secrets, secrets)
	return replay.NewEngine(s.acquireFunc(headless), executor)
}

func mergeSecrets(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
