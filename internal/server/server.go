package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/ai"
	"github.com/recipesnap/apiserver/internal/db"
	"github.com/recipesnap/apiserver/internal/handlers"
	"github.com/recipesnap/apiserver/internal/logging"
	"github.com/recipesnap/apiserver/internal/metrics"
	"github.com/recipesnap/apiserver/internal/mq"
	"github.com/recipesnap/apiserver/internal/services"
	"github.com/recipesnap/apiserver/internal/storage"
	"github.com/recipesnap/apiserver/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// Image generation alone can take most of a minute.
	requestTimeout  = 120 * time.Second
	writeTimeout    = requestTimeout + 10*time.Second
	shutdownTimeout = 15 * time.Second
)

// Server wraps the HTTP server, router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        logrus.FieldLogger

	db     *gorm.DB
	events mq.Backend
	redis  *redis.Client
	images *storage.ImageStore

	closeOnce sync.Once
	closeErr  error
}

// New opens every backing resource named by cfg and wires the routes.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tagPolicy, err := store.ParseTagPolicy(cfg.TagAttachPolicy)
	if err != nil {
		return nil, err
	}

	settings, err := db.ResolveSettings(cfg.Database, cfg.Env)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Open(ctx, settings, log)
	if err != nil {
		return nil, err
	}

	s := &Server{db: gdb, log: log}
	if err := s.wire(ctx, cfg, tagPolicy); err != nil {
		_ = s.closeResources()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context, cfg config.Config, tagPolicy store.TagPolicy) error {
	m := metrics.New()

	images, err := storage.New(ctx, cfg.Storage, s.log)
	if err != nil {
		return fmt.Errorf("image storage: %w", err)
	}
	s.images = images

	var publisher services.EventPublisher
	backend, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return err
	}
	if backend != nil {
		s.events = backend
		publisher = mq.NewEventPublisher(backend, cfg.MQ.RecipeChannel, m)
	}

	aiClient := ai.NewClient(cfg.AI, m, s.log)
	var extractor services.IngredientExtractor = aiClient
	if cfg.Redis.URL != "" {
		rdb, err := ai.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			s.log.WithError(err).Warn("redis unavailable; ingredient cache disabled")
		} else {
			s.redis = rdb
			extractor = ai.NewCachedExtractor(aiClient, rdb, cfg.AI.CacheTTL, s.log)
		}
	}

	authService, err := services.NewAuthService(store.NewUserRepository(s.db), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, s.log)
	if err != nil {
		return err
	}
	recipeService := services.NewRecipeService(store.NewRecipeRepository(s.db, tagPolicy), publisher, s.log)
	tagService := services.NewTagService(store.NewTagRepository(s.db), s.log)
	ingredientService := services.NewIngredientService(store.NewIngredientRepository(s.db))
	generationService := services.NewGenerationService(extractor, aiClient, aiClient, images, recipeService, s.log)

	auth := handlers.NewAuthHandler(authService, cfg.Auth, s.log)
	catalogue := handlers.NewCatalogueHandler(tagService, ingredientService, s.log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(s.log),
		middleware.Recoverer,
		m.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
	)

	router.Get("/healthz", handlers.Health(func(ctx context.Context) error {
		return db.Ping(ctx, s.db)
	}, s.log))
	router.Handle("/metrics", m.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, auth)
	})
	router.Route("/recipes", func(r chi.Router) {
		handlers.RecipeRouter(r, handlers.NewRecipeHandler(recipeService, s.log), auth)
	})
	router.Route("/tags", func(r chi.Router) {
		handlers.TagRouter(r, catalogue, auth)
	})
	router.Route("/ingredients", func(r chi.Router) {
		handlers.IngredientRouter(r, catalogue)
	})
	router.Route("/generate", func(r chi.Router) {
		handlers.GenerateRouter(r, handlers.NewGenerateHandler(generationService, s.log), auth)
	})
	mountStatic(router, images)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return nil
}

// mountStatic serves the local image directory when that backend is active.
func mountStatic(router chi.Router, images *storage.ImageStore) {
	dir, prefix, ok := images.StaticDir()
	if !ok {
		return
	}
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	router.Handle(prefix+"/*", fs)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// releases every resource.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// ends, then closes the broker, cache, storage and database in that order.
func (s *Server) Shutdown(ctx context.Context) error {
	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}
	return errors.Join(httpErr, s.closeResources())
}

func (s *Server) closeResources() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.events != nil {
			errs = append(errs, s.events.Close())
		}
		if s.redis != nil {
			errs = append(errs, s.redis.Close())
		}
		if s.images != nil {
			errs = append(errs, s.images.Close())
		}
		if s.db != nil {
			errs = append(errs, db.Close(s.db))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
