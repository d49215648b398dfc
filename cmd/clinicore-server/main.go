package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/accounting"
	"github.com/clinicore/clinicore/internal/domain/appointment"
	"github.com/clinicore/clinicore/internal/domain/clinical"
	"github.com/clinicore/clinicore/internal/domain/hospitalisation"
	"github.com/clinicore/clinicore/internal/domain/identity"
	"github.com/clinicore/clinicore/internal/domain/material"
	"github.com/clinicore/clinicore/internal/domain/patient"
	"github.com/clinicore/clinicore/internal/domain/registry"
	"github.com/clinicore/clinicore/internal/domain/session"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/mailer"
	"github.com/clinicore/clinicore/internal/platform/middleware"
	"github.com/clinicore/clinicore/internal/platform/worker"
)

const (
	sweepInterval = 24 * time.Hour
	taskQueueKey  = "clinicore:tasks"
	maxBodyBytes  = 1 << 20
)

// hospitalisationCloser defers binding of the hospitalisation service so the
// session coordinator and the hospitalisation service can depend on each
// other without an import cycle in either package.
type hospitalisationCloser struct {
	svc *hospitalisation.Service
}

func (c *hospitalisationCloser) CloseForSession(ctx context.Context, sessionID uuid.UUID, closedAt time.Time) error {
	return c.svc.CloseForSession(ctx, sessionID, closedAt)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicore-server",
		Short: "Hospital operations API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or replace the administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			login, _ := cmd.Flags().GetString("login")
			password, _ := cmd.Flags().GetString("password")
			force, _ := cmd.Flags().GetBool("force")
			if login == "" || password == "" {
				return fmt.Errorf("--login and --password are required")
			}

			app, pool, err := buildStandalone()
			if err != nil {
				return err
			}
			defer pool.Close()

			if _, err := app.identity.CreateAdmin(context.Background(), login, password, force); err != nil {
				return err
			}
			fmt.Printf("Administrateur %s créé.\n", login)
			return nil
		},
	}
	cmd.Flags().String("login", "", "Administrator login")
	cmd.Flags().String("password", "", "Administrator password")
	cmd.Flags().Bool("force", false, "Replace the existing administrator")
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the idle-session and expired-credential sweeps once",
		RunE: func(cmd *cobra.Command, args []string) error {
			sweepSessions, _ := cmd.Flags().GetBool("sessions")
			sweepCredentials, _ := cmd.Flags().GetBool("credentials")
			// No flag means both.
			if !sweepSessions && !sweepCredentials {
				sweepSessions, sweepCredentials = true, true
			}

			app, pool, err := buildStandalone()
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := context.Background()
			if sweepSessions {
				n, err := app.coordinator.SweepIdle(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Sessions inactives terminées : %d\n", n)
			}
			if sweepCredentials {
				n, err := app.identity.LockExpiredCredentials(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Identifiants expirés bloqués : %d\n", n)
			}
			return nil
		},
	}
	cmd.Flags().Bool("sessions", false, "Only sweep idle sessions")
	cmd.Flags().Bool("credentials", false, "Only lock expired credentials")
	return cmd
}

// buildStandalone wires the services for the one-shot commands, which need
// neither redis nor the HTTP surface.
func buildStandalone() (*app, *pgxpool.Pool, error) {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	application := buildApp(cfg, pool, worker.NewMemoryQueue(16), logger)
	return application, pool, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// app groups the wired services so serve, sweep and create-admin share one
// construction path.
type app struct {
	identity    *identity.Service
	registry    *registry.Registry
	patients    *patient.Service
	coordinator *session.Coordinator
	clinical    *clinical.Service
	hospital    *hospitalisation.Service
	appointment *appointment.Service
	accounting  *accounting.Engine
	material    *material.Service
	hub         *broadcast.Hub
	tokens      *auth.TokenService
	staffRepo   identity.StaffRepository
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, queue worker.TaskQueue, logger zerolog.Logger) *app {
	tx := db.NewPoolRunner(pool)
	hub := broadcast.NewHub(logger)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
		auth.NewRevocationStore())

	staffRepo := identity.NewStaffRepo(pool)
	adminRepo := identity.NewAdminRepo(pool)
	roomRepo := registry.NewRoomRepo(pool)

	reg := registry.NewRegistry(
		registry.NewServiceRepo(pool),
		roomRepo,
		registry.NewMatriculeRepo(pool),
		staffRepo,
		tx, hub, logger,
	)

	identitySvc := identity.NewService(
		staffRepo, adminRepo, tx, tokens, reg,
		identity.NewQueueNotifier(queue),
		hub, logger, cfg.PasswordExpiration(),
	)

	patientSvc := patient.NewService(
		patient.NewRepo(pool), patient.NewRecordRepo(pool), reg,
		tx, hub, logger,
	)
	// A staff member who registered patients cannot be deleted.
	identitySvc.AddDeletionGuard(patientSvc)

	closer := &hospitalisationCloser{}
	coordinator := session.NewCoordinator(
		session.NewRepo(pool), reg, closer,
		tx, hub, logger,
	)
	hospitalSvc := hospitalisation.NewService(
		hospitalisation.NewRepo(pool), roomRepo, coordinator,
		tx, hub, logger,
	)
	closer.svc = hospitalSvc

	return &app{
		identity:    identitySvc,
		registry:    reg,
		patients:    patientSvc,
		coordinator: coordinator,
		clinical:    clinical.NewService(clinical.NewRepo(pool), coordinator, hub, logger),
		hospital:    hospitalSvc,
		appointment: appointment.NewService(appointment.NewRepo(pool), hub, logger),
		accounting: accounting.NewEngine(
			accounting.NewAccountRepo(pool),
			accounting.NewJournalRepo(pool),
			accounting.NewReceiptRepo(pool),
			accounting.NewRevenueMappingRepo(pool),
			accounting.NewEntryRepo(pool),
			accounting.NewSequenceRepo(pool),
			tx, hub, logger,
		),
		material: material.NewService(
			material.NewRepo(pool), material.NewMovementRepo(pool),
			tx, hub, logger,
		),
		hub:       hub,
		tokens:    tokens,
		staffRepo: staffRepo,
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("chargement de la configuration impossible")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("configuration invalide")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connexion à la base de données impossible")
	}
	defer pool.Close()
	logger.Info().Msg("base de données connectée")

	// The durable task queue lives in redis; a process-local queue keeps
	// development working without one.
	var redisClient *redis.Client
	var queue worker.TaskQueue
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("REDIS_URL invalide")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		queue = worker.NewRedisQueue(redisClient, taskQueueKey)
		logger.Info().Msg("file de tâches redis active")
	} else {
		queue = worker.NewMemoryQueue(256)
		logger.Warn().Msg("REDIS_URL absent, file de tâches en mémoire")
	}

	application := buildApp(cfg, pool, queue, logger)

	// Credential emails leave through the worker pool, never the request
	// path: a broken relay slows nothing down.
	workers := worker.NewPool(queue, cfg.WorkerCount, logger)
	workers.Register(identity.TaskKindCredentialEmail, identity.NewCredentialEmailHandler(
		application.staffRepo,
		mailer.NewTemplateEngine(),
		mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}),
		logger,
		cfg.Debug && !cfg.IsProduction(),
	))
	go workers.Run(ctx)

	scheduler := worker.NewScheduler(logger)
	scheduler.Every(sweepInterval, "idle-session-sweep", func(ctx context.Context) error {
		_, err := application.coordinator.SweepIdle(ctx)
		return err
	})
	scheduler.Every(sweepInterval, "expired-credential-sweep", func(ctx context.Context) error {
		_, err := application.identity.LockExpiredCredentials(ctx)
		return err
	})
	go scheduler.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health/", func(c echo.Context) error {
		probe, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(probe); err != nil {
			return apperr.Unavailable("base de données injoignable").Wrap(err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(probe).Err(); err != nil {
				return apperr.Unavailable("redis injoignable").Wrap(err)
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api", auth.Middleware(application.tokens, auth.DefaultSkipper))

	identity.NewHandler(application.identity).RegisterRoutes(api, api)
	registry.NewHandler(application.registry).RegisterRoutes(api)
	patient.NewHandler(application.patients).RegisterRoutes(api)
	session.NewHandler(application.coordinator).RegisterRoutes(api)
	clinical.NewHandler(application.clinical).RegisterRoutes(api)
	hospitalisation.NewHandler(application.hospital).RegisterRoutes(api)
	appointment.NewHandler(application.appointment).RegisterRoutes(api)
	accounting.NewHandler(application.accounting).RegisterRoutes(api)
	material.NewHandler(application.material).RegisterRoutes(api)
	// The update stream lives at the root, outside the /api prefix.
	broadcast.NewHandler(application.hub).RegisterRoutes(e.Group(""))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("serveur démarré")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("arrêt du serveur")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("arrêt demandé, fermeture en cours")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("serveur arrêté")
	return nil
}
