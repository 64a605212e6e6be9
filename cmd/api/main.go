package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/config"
	"github.com/royalbingo/bingo-api/internal/domain/admin"
	"github.com/royalbingo/bingo-api/internal/domain/auth"
	"github.com/royalbingo/bingo-api/internal/domain/cashier"
	"github.com/royalbingo/bingo-api/internal/domain/engine"
	"github.com/royalbingo/bingo-api/internal/domain/game"
	"github.com/royalbingo/bingo-api/internal/domain/session"
	"github.com/royalbingo/bingo-api/internal/domain/user"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/archive"
	"github.com/royalbingo/bingo-api/internal/pkg/database"
	"github.com/royalbingo/bingo-api/internal/pkg/events"
	"github.com/royalbingo/bingo-api/internal/pkg/jwt"
	"github.com/royalbingo/bingo-api/internal/pkg/logger"
	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
	pkgresponse "github.com/royalbingo/bingo-api/internal/pkg/response"
	"github.com/royalbingo/bingo-api/internal/pkg/telegram"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Bingo API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	gameRepo := game.NewRepository(db)
	adminRepo := admin.NewRepository(db)
	cashierRepo := cashier.NewRepository(db)

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo, cfg.DepositThreshold)
	walletService.SetCache(wallet.NewBalanceCache(redis))
	gameService := game.NewService(gameRepo)
	adminService := admin.NewService(adminRepo, userRepo)

	// ---------- Game engine ----------
	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaGameTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	var gameArchive archive.Archive = archive.Nop{}
	if cfg.ArchiveEnabled() {
		s3Archive, err := archive.NewS3Archive(archive.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create game archive")
		}
		gameArchive = s3Archive
	}

	var checkpoints engine.Checkpointer = engine.NopCheckpointer{}
	if redis != nil {
		checkpoints = engine.NewRedisCheckpointer(redis)
	}

	hub := session.NewHub()
	gameEngine := engine.New(engineConfig(cfg), engine.Deps{
		Wallet:       walletService,
		Registry:     gameService,
		Broadcaster:  hub,
		Checkpointer: checkpoints,
		Publisher:    publisher,
		Archive:      gameArchive,
	})
	if err := gameEngine.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start game engine")
	}

	// ---------- Auth and cashier ----------
	authService := auth.NewService(
		userRepo,
		telegram.NewVerifier(cfg.TelegramBotToken, cfg.InitDataMaxAge),
		walletService,
		jwtService,
		auth.NewRedisRefreshStore(redis),
		cfg.AdminTelegramIDs,
	)

	var notifier telegram.Notifier = telegram.NopNotifier{}
	if cfg.NotifierEnabled() {
		notifier = telegram.NewBotNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChatID)
	} else {
		log.Warn().Msg("Telegram admin chat not configured, cashier notifications disabled")
	}
	cashierService := cashier.NewService(cashierRepo, walletService, notifier, adminService, cashier.Config{
		MinDeposit:    cfg.MinDeposit,
		MinWithdrawal: cfg.MinWithdrawal,
	})

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService)
	walletHandler := wallet.NewHandler(walletService)
	gameHandler := game.NewHandler(gameService, gameEngine)
	sessionHandler := session.NewHandler(gameEngine, hub, session.NewRateLimiter(redis, cfg.WSRateLimit, cfg.WSRateWindow), cfg.AllowedOrigins)
	cashierHandler := cashier.NewHandler(cashierService)
	adminHandler := admin.NewHandler(adminService)

	authMiddleware := middleware.Auth(jwtService)
	adminOnly := middleware.RequireAdmin()

	r := newRouter(cfg.AllowedOrigins, apiRoutes{
		ws:               sessionHandler.WSRoute(authMiddleware),
		auth:             authHandler.Routes(authMiddleware),
		cards:            sessionHandler.CardRoutes(),
		wallet:           walletHandler.Routes(authMiddleware),
		games:            gameHandler.Routes(authMiddleware),
		deposits:         cashierHandler.DepositRoutes(authMiddleware),
		withdrawals:      cashierHandler.WithdrawalRoutes(authMiddleware),
		admin:            adminHandler.Routes(authMiddleware, adminOnly),
		adminUsers:       adminHandler.UserRoutes(authMiddleware, adminOnly),
		adminWallets:     walletHandler.AdminRoutes(authMiddleware, adminOnly),
		adminGames:       gameHandler.AdminRoutes(authMiddleware, adminOnly),
		adminDeposits:    cashierHandler.DepositAdminRoutes(authMiddleware, adminOnly),
		adminWithdrawals: cashierHandler.WithdrawalAdminRoutes(authMiddleware, adminOnly),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the round before closing sockets so no event is sent to a
	// closed channel.
	gameEngine.Stop()
	hub.Shutdown()
	cashierService.Wait()

	log.Info().Msg("Server exited properly")
}

func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.SelectionDuration = cfg.SelectionDuration
	ec.DrawInterval = cfg.DrawInterval
	ec.WinnerDisplayDuration = cfg.WinnerDisplayDuration
	ec.Stake = cfg.GameStake
	ec.MinPlayers = cfg.MinPlayers
	ec.PayoutFraction = cfg.PayoutFraction
	ec.CardCount = cfg.CardCount
	ec.WalletTimeout = cfg.WalletCallTimeout
	return ec
}

// apiRoutes are the domain routers, each mounted under its own prefix
type apiRoutes struct {
	ws          http.HandlerFunc
	auth        http.Handler
	cards       http.Handler
	wallet      http.Handler
	games       http.Handler
	deposits    http.Handler
	withdrawals http.Handler

	admin            http.Handler
	adminUsers       http.Handler
	adminWallets     http.Handler
	adminGames       http.Handler
	adminDeposits    http.Handler
	adminWithdrawals http.Handler
}

func newRouter(allowedOrigins []string, routes apiRoutes) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(allowedOrigins))

	// WebSocket endpoint sits outside the timeout group, the upgrade is hijacked
	r.Get("/ws", routes.ws)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				pkgresponse.OK(w, map[string]string{"message": "pong"})
			})

			r.Mount("/auth", routes.auth)
			r.Mount("/cards", routes.cards)
			r.Mount("/wallet", routes.wallet)
			r.Mount("/games", routes.games)
			r.Mount("/deposits", routes.deposits)
			r.Mount("/withdrawals", routes.withdrawals)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Mount("/", routes.admin)
			r.Mount("/users", routes.adminUsers)
			r.Mount("/wallets", routes.adminWallets)
			r.Mount("/games", routes.adminGames)
			r.Mount("/deposits", routes.adminDeposits)
			r.Mount("/withdrawals", routes.adminWithdrawals)
		})
	})

	return r
}
