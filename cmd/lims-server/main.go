package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/limshq/lims/internal/config"
	"github.com/limshq/lims/internal/domain/catalog"
	"github.com/limshq/lims/internal/domain/document"
	"github.com/limshq/lims/internal/domain/encounter"
	"github.com/limshq/lims/internal/domain/patient"
	"github.com/limshq/lims/internal/domain/results"
	"github.com/limshq/lims/internal/domain/specimen"
	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/audit"
	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/middleware"
	"github.com/limshq/lims/internal/platform/renderqueue"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lims-server",
		Short: "Lab workflow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the lab workflow API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
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

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			if name == "" {
				name = id
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := tenant.NewService(tenant.NewRepo(pool))
			t := &tenant.Tenant{ID: id, Name: name, Active: true}
			if err := svc.CreateTenant(ctx, t); err != nil {
				return err
			}
			fmt.Printf("Tenant %s created.\n", t.ID)
			return nil
		},
	}
	createCmd.Flags().String("id", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("name", "", "Display name (defaults to the id)")
	cmd.AddCommand(createCmd)

	moduleCmd := &cobra.Command{
		Use:   "module",
		Short: "Enable or disable a tenant module",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("tenant")
			key, _ := cmd.Flags().GetString("key")
			enabled, _ := cmd.Flags().GetBool("enabled")
			if id == "" || key == "" {
				return fmt.Errorf("--tenant and --key are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := tenant.NewService(tenant.NewRepo(pool))
			if err := svc.SetModuleFlag(ctx, id, key, enabled); err != nil {
				return err
			}
			fmt.Printf("Module %s for tenant %s set to %v.\n", key, id, enabled)
			return nil
		},
	}
	moduleCmd.Flags().String("tenant", "", "Tenant identifier")
	moduleCmd.Flags().String("key", "", "Module key")
	moduleCmd.Flags().Bool("enabled", true, "Enable or disable the module")
	cmd.AddCommand(moduleCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Render queue: Redis when configured, in-memory otherwise.
	var queue renderqueue.Queue
	if cfg.RedisURL != "" {
		rq, err := renderqueue.NewRedisQueueFromURL(ctx, cfg.RedisURL, "lims:render")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rq.Close()
		queue = rq
		logger.Info().Msg("connected to redis render queue")
	} else {
		queue = renderqueue.NewMemoryQueue(1024)
		logger.Warn().Msg("REDIS_URL not set, render jobs are held in memory")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M", "10M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(middleware.DevAuth())
	} else {
		e.Use(middleware.JWTAuth(middleware.JWTConfig{
			Secret:    cfg.JWTSecret,
			SkipPaths: []string{"/health", "/ready"},
		}))
	}

	// Tenant middleware
	e.Use(db.TenantMiddleware(cfg.DefaultTenant))

	// API group
	api := e.Group("/api/v1")

	// Rate limiting: the throttle smooths bursts per tenant, quotas cap
	// sustained volume over minute and day windows.
	throttle := middleware.NewThrottle(middleware.ThrottleConfig{
		RefillPerSecond: cfg.RateLimitRPS,
		Burst:           cfg.RateLimitBurst,
	})
	go throttle.Sweep(ctx, time.Minute)
	api.Use(throttle.Middleware())

	quotas := middleware.NewTenantQuotas()
	go quotas.Sweep(ctx, time.Minute)
	api.Use(middleware.Quota(quotas))
	middleware.NewQuotaHandler(quotas).RegisterRoutes(api)

	// ETag caching for list and read endpoints.
	api.Use(middleware.ETagMiddleware(middleware.DefaultCacheConfig()))

	// Audit sink
	sink := audit.NewPGSink(pool, logger)

	// Services
	runTx := db.NewTxRunner(pool)

	tenantSvc := tenant.NewService(tenant.NewRepo(pool))
	patientSvc := patient.NewService(patient.NewRepo(pool))
	catalogSvc := catalog.NewService(catalog.NewRepo(pool))
	specimenSvc := specimen.NewService(specimen.NewRepo(pool), sink)
	documentSvc := document.NewService(document.NewRepo(pool), tenantSvc, tenantSvc, queue, sink, logger)

	docTrigger := &documentTrigger{docs: documentSvc}
	encounterRepo := encounter.NewRepo(pool)
	encounterSvc := encounter.NewService(encounterRepo, specimenSvc, patientSvc, catalogSvc, tenantSvc, docTrigger, sink, runTx, logger)
	resultsSvc := results.NewService(results.NewRepo(pool), encounterRepo, catalogSvc, tenantSvc, docTrigger, sink, runTx, logger)

	// Handlers
	tenant.NewHandler(tenantSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	catalog.NewHandler(catalogSvc).RegisterRoutes(api)
	encounter.NewHandler(encounterSvc, specimenSvc).RegisterRoutes(api)
	results.NewHandler(resultsSvc).RegisterRoutes(api)
	document.NewHandler(documentSvc).RegisterRoutes(api)

	// Health endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/ready", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		var serveErr error
		if cfg.TLSEnabled {
			serveErr = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			serveErr = e.Start(addr)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatal().Err(serveErr).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// documentTrigger adapts document.Service.Generate to the narrower trigger
// interface the workflow services consume. Callers only care that a job was
// accepted, not whether the artifact already existed.
type documentTrigger struct {
	docs *document.Service
}

func (t *documentTrigger) Generate(ctx context.Context, tenantID, docType string, payload map[string]interface{}, sourceRef, sourceType, actorID string) error {
	_, _, err := t.docs.Generate(ctx, tenantID, docType, payload, sourceRef, sourceType, actorID)
	return err
}
