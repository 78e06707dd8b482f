package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/admin"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/sandbox"
	"github.com/clinic/clinic/internal/platform/websocket"
	"github.com/clinic/clinic/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads config and opens the pool; callers close the pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// migrationSource prefers an on-disk directory and falls back to the SQL
// embedded in the binary.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR, then the embedded set)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR, then the embedded set)")
	cmd.AddCommand(statusCmd)

	// Rollbacks are forward-only; down only explains that.
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password (or ADMIN_PASSWORD) are required")
			}

			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newServices(pool, nil, time.UTC, newLogger())
			u, err := svc.admin.CreateAdmin(ctx, email, name, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("email", "", "Login email")
	createAdmin.Flags().String("name", "Administrator", "Display name")
	createAdmin.Flags().String("password", "", "Password (or set ADMIN_PASSWORD)")
	cmd.AddCommand(createAdmin)
	return cmd
}

func runServer(migrate bool) error {
	// Logger
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrate {
		n, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger, cfg.IsDev())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		SigningKey: []byte(cfg.JWTSecret),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
		logger.Warn().Msg("development auth: anonymous requests act as admin")
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit trail, persisted off the request path
	auditStore := db.NewAuditStore(pool)
	auditDispatcher := middleware.NewAuditDispatcher(middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return auditStore.Insert(ctx, db.AuditRecord{
			UserID:     entry.UserID,
			UserRoles:  entry.UserRoles,
			Resource:   entry.Resource,
			ResourceID: entry.ResourceID,
			Action:     entry.Action,
			Method:     entry.Method,
			Path:       entry.Path,
			StatusCode: entry.StatusCode,
			IPAddress:  entry.IPAddress,
			UserAgent:  entry.UserAgent,
			RequestID:  entry.RequestID,
			RecordedAt: entry.Timestamp,
		})
	}), cfg.AuditBuffer, logger)
	e.Use(middleware.Audit(logger, auditDispatcher))

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	issuer := auth.NewIssuer(jwtCfg, cfg.TokenTTL)
	svc := newServices(pool, issuer, loc, logger)

	admin.NewHandler(svc.admin).RegisterRoutes(apiV1)
	apiV1.GET("/audit-log", db.AuditLogHandler(auditStore), auth.RequireRole(auth.RoleAdmin))
	identity.NewHandler(svc.identity).RegisterRoutes(apiV1)

	// Live schedule feed
	hub := websocket.NewHub(logger)
	defer hub.CloseAll()
	wsHandler := websocket.NewWebSocketHandler(hub, websocket.HandlerConfig{
		AllowedOrigins: cfg.CORSOrigins,
		Authorize: func(ctx context.Context, caller auth.Caller, topic string) bool {
			if !caller.IsDoctorOnly() {
				return true
			}
			doctorID, ok, err := svc.identity.DoctorIDByUser(ctx, caller.UserID)
			return err == nil && ok && topic == websocket.DoctorTopic(doctorID)
		},
	}, logger)
	wsHandler.RegisterRoutes(apiV1)

	svc.scheduling.SetEventPublisher(hub)
	scheduling.NewHandler(svc.scheduling).RegisterRoutes(apiV1)

	// Demo data
	if cfg.IsDev() {
		seeder := sandbox.NewSeeder(serviceSink{svc: svc}, loc, logger)
		sandbox.NewSeedHandler(seeder).RegisterRoutes(apiV1.Group("/sandbox", auth.RequireRole(auth.RoleAdmin)))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	auditDispatcher.Close()
	logger.Info().Msg("server stopped")
	return nil
}
