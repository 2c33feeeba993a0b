package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"civicreport-be/controllers"
	"civicreport-be/middlewares"
	"civicreport-be/routes"
	"civicreport-be/services"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the XP reconciler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rf.configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	a, err := openApp(ctx, configPath, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// Sentry error tracking
	if a.cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              a.cfg.SentryDSN,
			Environment:      a.cfg.Environment,
			AttachStacktrace: true,
		}); err != nil {
			a.logger.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconcileDone := make(chan struct{})
	a.reconciler().Start(ctx, a.cfg.ReconcileInterval, reconcileDone)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "port", a.cfg.Port, "store", a.cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		close(reconcileDone)
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	close(reconcileDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", "error", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// newRouter builds the gin engine with the global middleware chain and every
// route group.
func newRouter(a *app) *gin.Engine {
	gin.SetMode(a.cfg.GinMode)
	r := gin.New()

	if a.cfg.SentryDSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(middlewares.RequestLogger(a.logger))
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(a.cfg.CORSOrigins)))

	timeout := a.cfg.RequestTimeout
	routes.Setup(r, routes.Dependencies{
		Auth: &controllers.AuthController{
			Users:      a.store.Users(),
			Secret:     a.cfg.JWTSecret,
			TokenTTL:   a.cfg.TokenTTL,
			Domain:     a.cfg.Domain,
			Production: a.cfg.Production(),
			Timeout:    timeout,
			Logger:     a.logger,
		},
		Issues: &controllers.IssueController{
			Issues:  a.issueService(),
			Timeout: timeout,
			Logger:  a.logger,
		},
		Users: &controllers.UserController{
			Leaderboard: services.NewLeaderboardService(a.store.Ledger()),
			Timeout:     timeout,
			Logger:      a.logger,
		},
		JWTSecret:   a.cfg.JWTSecret,
		Redis:       a.redis,
		LimitPrefix: a.cfg.IssueLimitPrefix,
		DailyLimit:  a.cfg.IssueDailyLimit,
	})
	return r
}

// corsConfig allows credentials for explicit origins only; a wildcard or
// empty list is served without them.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
		ExposeHeaders: []string{middlewares.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
