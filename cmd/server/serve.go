package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/whenwhy/internal/api"
	"github.com/soaringjerry/whenwhy/internal/middleware"
	"github.com/soaringjerry/whenwhy/internal/services"
	"github.com/soaringjerry/whenwhy/internal/telemetry"
)

type ServeCmd struct {
	Addr string `help:"Listen address, overrides server.addr."`
}

// server holds everything a running instance must stop on shutdown.
type server struct {
	handler  http.Handler
	study    *services.StudyService
	recorder *services.Recorder
}

func (s *server) close() {
	s.study.Shutdown()
	s.recorder.Close()
}

func (a *appContext) newServer(store services.SessionStore) *server {
	cfg := a.cfg
	provider := a.suggestionProvider()
	recorder := services.NewRecorder(store, a.log, 256)
	study := services.NewStudyService(store, provider, recorder, services.StudyOptions{Logger: a.log})
	if cfg.Auth.JWTSecret == "" {
		a.log.Warn("auth.jwt_secret is empty; researcher tokens use the development secret")
	}
	authn := middleware.NewAuthenticator(cfg.Auth.JWTSecret)

	mux := http.NewServeMux()
	api.NewRouter(api.Deps{
		Study:        study,
		Participants: services.NewParticipantService(store),
		Export:       services.NewExportService(store),
		Analytics:    services.NewAnalyticsService(store),
		Auth:         services.NewAuthService(store, authn.SignToken, cfg.Auth.TokenTTL),
		Provider:     provider,
		Authn:        authn,
		Logger:       a.log,
	}).Register(mux)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":       "whenwhy",
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	// The built participant client is served from the same origin.
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}

	var handler http.Handler = middleware.LocaleMiddleware(mux)
	handler = middleware.NoStore(handler)
	handler = middleware.SecureHeaders(handler)
	handler = middleware.CORS(cfg.Server.CORSOrigins)(handler)
	handler = middleware.Logging(a.log)(handler)
	handler = middleware.RequestID(handler)
	if cfg.Telemetry.Enabled {
		handler = otelhttp.NewHandler(handler, cfg.Telemetry.ServiceName)
	}
	return &server{handler: handler, study: study, recorder: recorder}
}

func (c *ServeCmd) Run(app *appContext) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.cfg
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}
	if cfg.Telemetry.Enabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, commit, os.Stdout, app.log)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				app.log.Warn("tracer shutdown", "err", err)
			}
		}()
	}

	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			app.log.Warn("close store", "err", err)
		}
	}()

	s := app.newServer(store)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.log.Info("whenwhy server listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "ai", cfg.AI.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Live tasks are torn down only after no handler can reach them.
		s.close()
		return err
	})
	return g.Wait()
}
