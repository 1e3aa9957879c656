package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/agents"
	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/agent/telemetry"
	"github.com/onchainos/steward/internal/capability"
	"github.com/onchainos/steward/internal/chain"
	"github.com/onchainos/steward/internal/memory"
	"github.com/onchainos/steward/internal/research"
	"github.com/onchainos/steward/internal/runtime"
	"github.com/onchainos/steward/internal/store"
)

// Run wires the full agent surface and serves it until the listener fails.
// An empty addr falls back to the configured server address.
func Run(ctx context.Context, cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Migrations only make sense against a configured database; the memory
	// fallback needs none.
	if cfg.Storage.Postgres.URL != "" || cfg.Storage.Postgres.Host != "" {
		if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			log.Printf("warn: migrations: %v", err)
		}
	}

	st := store.Open(ctx, cfg.Storage, log.New(log.Writer(), "[STORE] ", log.LstdFlags))
	defer func() { _ = st.Close() }()

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	// Chain client is optional; without an RPC endpoint the boundary serves
	// deterministic mock results flagged as degraded.
	var chainClient *chain.Client
	var boundary core.ExecutionBoundary
	if cfg.Chain.RPCURL != "" {
		cc, err := chain.Dial(ctx, cfg.Chain)
		if err != nil {
			log.Printf("warn: chain rpc unavailable (%v); using mock boundary", err)
		} else {
			chainClient = cc
			boundary = chain.NewRPCBoundary(cc, cfg.Chain.BoundaryAddress)
		}
	}
	if boundary == nil {
		boundary = chain.NewMockBoundary()
	}

	// Research cache rides on redis when configured, memory otherwise. The
	// redis client doubles as the scheduler's lock provider.
	var cache research.Cache
	var redisCache *store.RedisCache
	if cfg.Storage.Redis.Host != "" {
		rc, err := store.NewRedisCache(ctx, cfg.Storage.Redis)
		if err != nil {
			log.Printf("warn: redis unavailable (%v); using in-memory research cache", err)
		} else {
			redisCache = rc
			cache = rc
		}
	}
	if cache == nil {
		cache = research.NewMemoryCache()
	}

	idx, err := research.NewIndex(cfg.Research.IndexPath)
	if err != nil {
		log.Printf("warn: research index unavailable: %v", err)
		idx = nil
	}

	registry := capability.NewRegistry(cfg.Capability.SigningSecret)
	mem := memory.NewManager(st, log.New(log.Writer(), "[MEMORY] ", log.LstdFlags))

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(cfg, orchLogger, tele, registry, mem, st)
	if err != nil {
		return err
	}

	agentSet := agents.NewAgents(agents.Deps{
		Config:    cfg,
		Logger:    log.New(log.Writer(), "[AGENTS] ", log.LstdFlags),
		Telemetry: tele,
		LLM:       orch.LLM(),
		Boundary:  boundary,
		Chain:     chainClient,
		Cache:     cache,
		Index:     idx,
	})
	for _, ag := range agentSet {
		if err := registry.Register(ag); err != nil {
			return fmt.Errorf("registering agent %s: %w", ag.ID(), err)
		}
	}
	if len(cfg.Capability.RequiredAgents) > 0 {
		if err := registry.RequireAgents(cfg.Capability.RequiredAgents); err != nil {
			return err
		}
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	ah := &AuthHandler{Store: st, Secret: secret}
	ah.Register(api.Group("/auth"))

	protected := api.Group("")
	protected.Use(runtime.EchoAuthMiddleware(secret))
	ah.RegisterProtected(protected.Group("/auth"))

	ih := &IntentsHandler{Store: st, Orch: orch}
	ih.Register(protected)

	uh := &UsersHandler{Memory: mem}
	uh.Register(protected.Group("/users"))

	agh := &AgentsHandler{Registry: registry}
	agh.Register(protected.Group("/agents"))

	NewOpsHandler(tele).Register(protected.Group("/ops"))

	rh := &ResearchHandler{Index: idx}
	if cfg.Research.LiveFetch {
		rh.Fetcher = research.NewFetcher(cfg.Research)
	}
	rh.Register(protected.Group("/research"))

	wh := &WatchesHandler{Store: st}
	wh.Register(protected.Group("/watches"))

	var sched *Scheduler
	if cfg.Server.SchedulerEnabled {
		var locker Locker
		if redisCache != nil {
			locker = redisCache
		}
		sched = &Scheduler{Store: st, Runner: orch, Locker: locker, Stop: make(chan struct{})}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("listening on %s", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Drain in-flight requests before exiting; the scheduler stops first so
	// no new watch runs start during the drain.
	log.Printf("shutting down")
	if sched != nil {
		close(sched.Stop)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
