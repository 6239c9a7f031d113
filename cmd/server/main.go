package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"booking-service/internal/app"
	"booking-service/internal/calendar"
	"booking-service/internal/config"
	"booking-service/internal/server"
)

func newLogger(cfg *config.Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return logger
}

func newOAuthConfig(cfg *config.Config) *oauth2.Config {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.GoogleRedirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       app.CalendarScopes,
		Endpoint:     google.Endpoint,
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL required")
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		logger.Fatal("invalid DEFAULT_TIMEZONE", zap.String("tz", cfg.DefaultTimezone), zap.Error(err))
	}

	store := app.NewPostgresStore(pool)
	oauthCfg := newOAuthConfig(cfg)
	adapter := calendar.NewAdapter(oauthCfg, store, store, logger, cfg.DefaultTimezone)
	engine := app.NewBookingService(store, adapter, logger, loc)

	appInstance := &app.App{
		Engine:      engine,
		Connections: store,
		Calendars:   adapter,
		OAuth:       oauthCfg,
		Log:         logger,
		DefaultTZ:   cfg.DefaultTimezone,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", appInstance.GoogleOAuth2CallbackHandler)

	router.Use(app.AuthMiddleware(cfg.JWTSecret, strings.Split(cfg.StaticTokens, ",")))

	api := router.Group("/api")
	{
		hosts := api.Group("/hosts")
		{
			hosts.POST("/:id/availability", appInstance.SetAvailabilityHandler)
			hosts.PUT("/:id/availability/:rule_id", appInstance.UpdateAvailabilityHandler)
			hosts.GET("/:id/availability", appInstance.ListAvailabilityHandler)
			hosts.GET("/:id/availability/check", appInstance.CheckAvailabilityHandler)
			hosts.GET("/:id/slots", appInstance.GetSlotsHandler)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", appInstance.CreateBookingHandler)
			bookings.GET("", appInstance.ListBookingsHandler)
			bookings.GET("/:id", appInstance.GetBookingHandler)
			bookings.PATCH("/:id", appInstance.UpdateBookingHandler)
			bookings.DELETE("/:id", appInstance.CancelBookingHandler)
			bookings.GET("/:id/audit", appInstance.ListAuditHandler)
		}

		cal := api.Group("/calendar")
		{
			cal.GET("/auth", appInstance.GoogleAuthHandler)
			cal.GET("/calendars", appInstance.ListCalendarsHandler)
			cal.PUT("/connection", appInstance.UpdateCalendarSettingsHandler)
		}
	}

	server.Run(router, cfg.Port)
}
