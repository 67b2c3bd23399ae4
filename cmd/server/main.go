package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	_ "github.com/lib/pq"

	"github.com/liamcoop/decisions/catalog"
	"github.com/liamcoop/decisions/function"
	"github.com/liamcoop/decisions/internal/config"
	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/internal/metrics"
	"github.com/liamcoop/decisions/rules"
	"github.com/liamcoop/decisions/tables"
)

type Server struct {
	db       *sql.DB
	catalog  *catalog.Catalog
	engine   *rules.Engine
	function *function.Handler
	metrics  *metrics.Collector
	validate *validator.Validate
	logger   *slog.Logger
	router   *chi.Mux
}

// ServerOptions carries the collaborators of a Server; DB and Metrics are optional
type ServerOptions struct {
	DB             *sql.DB
	Catalog        *catalog.Catalog
	Engine         *rules.Engine
	Metrics        *metrics.Collector
	DefaultTable   string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		db:       opts.DB,
		catalog:  opts.Catalog,
		engine:   opts.Engine,
		function: function.NewHandler(opts.Engine, opts.DefaultTable, opts.Logger),
		metrics:  opts.Metrics,
		validate: validator.New(),
		logger:   opts.Logger,
	}

	s.setupRoutes(opts.AllowedOrigins)

	return s
}

func (s *Server) setupRoutes(allowedOrigins []string) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Decision table management and evaluation
		r.Route("/decisions", func(r chi.Router) {
			r.Get("/", s.handleListTables)
			r.Get("/{name}", s.handleGetTable)
			r.Put("/{name}", s.handlePublishTable)
			r.Delete("/{name}", s.handleDeleteTable)
			r.Post("/{name}/evaluate", s.handleEvaluate)
		})

		r.Post("/reload", s.handleReload)

		// Function handler emulation
		r.Post("/invoke", s.handleInvoke)
		r.Post("/invoke/{table}", s.handleInvoke)

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request through the structured logger and counts it
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.RecordRequest(route, r.Method, status)
		}

		s.logger.Debug("request handled",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	if err := logger.Setup(ctx, logger.Options{
		Level:       cfg.Logging.Level,
		SampleRate:  cfg.Logging.SampleRate,
		OTELEnabled: cfg.Logging.OTELEnabled,
		ServiceName: cfg.Logging.ServiceName,
	}); err != nil {
		logger.Warn("logger setup incomplete", "error", err)
	}
	defer logger.Shutdown(context.Background())

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
	}

	catalogOpts := []catalog.Option{
		catalog.WithSource(catalog.NewFSSource("embedded", tables.FS)),
		catalog.WithLogger(logger.Logger.With("component", "catalog")),
	}
	if cfg.Tables.Dir != "" {
		catalogOpts = append(catalogOpts, catalog.WithSource(catalog.NewDirSource(cfg.Tables.Dir)))
	}

	var db *sql.DB
	if cfg.HasDatabase() {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()
		catalogOpts = append(catalogOpts, catalog.WithRepository(rules.NewPostgresDefinitionStore(db)))
	}

	engineOpts := []rules.Option{
		rules.WithRequireMatch(cfg.Tables.RequireMatch),
		rules.WithLogger(logger.Logger.With("component", "engine")),
	}
	if collector != nil {
		catalogOpts = append(catalogOpts, catalog.WithObserver(collector))
		engineOpts = append(engineOpts, rules.WithObserver(collector))
	}

	store := rules.NewStore()
	cat := catalog.New(store, catalogOpts...)

	logger.Info("loading decision tables", "sources", cat.Sources())
	if err := cat.LoadAll(ctx); err != nil {
		logger.Fatal("failed to load decision tables", "error", err)
	}
	logger.Info("decision tables loaded", "tables", store.Names())

	if _, err := store.Get(cfg.Tables.DefaultTable); err != nil {
		logger.Warn("default table is not loaded", "table", cfg.Tables.DefaultTable)
	}

	engine := rules.NewEngine(store, engineOpts...)

	if cfg.Tables.Watch {
		watcher, err := catalog.NewFileWatcher(cfg.Tables.Dir, catalog.DefaultDebounce, logger.Logger.With("component", "watcher"))
		if err != nil {
			logger.Fatal("failed to create table watcher", "error", err)
		}
		go func() {
			err := watcher.Watch(ctx, func() error {
				_, err := cat.Reload(ctx)
				return err
			})
			if err != nil {
				logger.Error("table watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	scheduler := catalog.NewScheduler(cat, cfg.Tables.RefreshSchedule, logger.Logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("failed to start refresh scheduler", "error", err)
	}
	defer scheduler.Stop()

	server := NewServer(ServerOptions{
		DB:             db,
		Catalog:        cat,
		Engine:         engine,
		Metrics:        collector,
		DefaultTable:   cfg.Tables.DefaultTable,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Logger,
	})

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
