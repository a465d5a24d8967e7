package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vatsuok/admin"
	"vatsuok/analytics"
	"vatsuok/auth"
	"vatsuok/blog"
	"vatsuok/common"
	"vatsuok/config"
	"vatsuok/contact"
	"vatsuok/database"
	"vatsuok/email"
	"vatsuok/metrics"
	"vatsuok/project"
	"vatsuok/site"
	"vatsuok/uploads"
	"vatsuok/views"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := common.NewLogger(cfg.IsProd)

	db, err := common.ConnectDb(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.RunMigrations(db, log); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), common.RequestLogger(log), metrics.Middleware())
	router.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 20

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.IsProd,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("vatsuok-session", store))

	views.Load(router, cfg.SiteTitle)
	router.Static("/static/uploads", cfg.UploadsDir)

	images := uploads.NewStore(cfg.UploadsDir, int64(cfg.MaxUploadMB)<<20)

	var notifier contact.Notifier
	if cfg.SMTP.Enabled() {
		notifier = email.NewEmailService(cfg)
	} else {
		log.Info().Msg("SMTP not configured, contact notifications disabled")
	}

	authModule := auth.NewAuthModule(db, log)
	router.Use(authModule.Principal)
	authModule.RegisterRoutes(router)

	analyticsModule := analytics.NewAnalyticsModule(db, log)

	blogModule := blog.NewBlogModule(db, log, images, analyticsModule)
	projectModule := project.NewProjectModule(db, log, images)

	site.NewSiteModule(db, log, cfg.Domain, blogModule, projectModule).RegisterRoutes(router)
	blogModule.RegisterRoutes(router)
	projectModule.RegisterRoutes(router)
	contact.NewContactModule(db, log, notifier).RegisterRoutes(router)
	admin.NewAdminModule(db, log, authModule, analyticsModule).RegisterRoutes(router)

	router.GET("/metrics", metrics.Handler())
	router.NoRoute(common.NotFound)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChannel := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChannel <- err
		}
	}()
	go listenToInterrupt(errChannel)

	fatalErr := <-errChannel
	log.Info().Err(fatalErr).Msg("shutting down")

	shutdown(server, log, 30*time.Second)
}

// listenToInterrupt waits for SIGINT or SIGTERM and then sends an error to the error channel.
func listenToInterrupt(errChannel chan<- error) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	errChannel <- fmt.Errorf("%s", <-c)
}

func shutdown(server *http.Server, log zerolog.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return
	}
	log.Info().Msg("server stopped")
}
