// Package app wires the control plane's HTTP API and lifecycle reconciler
// together. Run selects between the two run modes per cfg.Mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/kubernetes"

	"github.com/labondemand/control-plane/internal/audit"
	"github.com/labondemand/control-plane/internal/auth"
	"github.com/labondemand/control-plane/internal/config"
	"github.com/labondemand/control-plane/internal/httpserver"
	"github.com/labondemand/control-plane/internal/platform"
	"github.com/labondemand/control-plane/internal/telemetry"
	"github.com/labondemand/control-plane/pkg/catalog"
	"github.com/labondemand/control-plane/pkg/deployment"
	"github.com/labondemand/control-plane/pkg/k8sclient"
	"github.com/labondemand/control-plane/pkg/lab"
	"github.com/labondemand/control-plane/pkg/namespacebaseline"
	"github.com/labondemand/control-plane/pkg/orchestrator"
	"github.com/labondemand/control-plane/pkg/quota"
	"github.com/labondemand/control-plane/pkg/reconciler"
	"github.com/labondemand/control-plane/pkg/user"
)

// Run boots the application in the mode selected by cfg.Mode ("api" or
// "reconciler") and blocks until ctx is canceled or a fatal error occurs.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	cluster, err := k8sclient.New(cfg.KubeconfigPath, cfg.KubeInCluster)
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	deployments := deployment.NewStore(pool)
	quotas := quota.NewStore(pool)
	catalogSvc := catalog.NewService(pool, logger)
	users := user.NewStore(pool)
	baseline := namespacebaseline.New(cluster, cfg.UserNamespacePrefix, logger)

	orchCfg := orchestrator.Config{
		LabTTLStudentDays:    cfg.LabTTLStudentDays,
		LabTTLTeacherDays:    cfg.LabTTLTeacherDays,
		IngressEnabled:       cfg.IngressEnabled,
		IngressBaseDomain:    cfg.IngressBaseDomain,
		IngressClassName:     cfg.IngressClassName,
		IngressTLSSecret:     cfg.IngressTLSSecret,
		IngressAutoTypes:     toSet(cfg.IngressAutoTypes),
		IngressExcludedTypes: toSet(cfg.IngressExcludedTypes),
	}
	orch := orchestrator.New(orchCfg, cluster, deployments, quotas, catalogSvc, baseline, auditWriter, logger)

	switch cfg.Mode {
	case "reconciler":
		return runReconciler(ctx, cfg, cluster, deployments, users, orch, auditWriter, logger)
	case "api":
		return runAPI(ctx, cfg, pool, rdb, cluster, metricsReg, auditWriter, deployments, orch, logger)
	default:
		return fmt.Errorf("unknown mode %q: must be \"api\" or \"reconciler\"", cfg.Mode)
	}
}

// toSet converts a configured comma-separated list into a membership set.
func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func runReconciler(
	ctx context.Context,
	cfg *config.Config,
	cluster kubernetes.Interface,
	deployments *deployment.Store,
	users *user.Store,
	orch *orchestrator.Orchestrator,
	auditWriter *audit.Writer,
	logger *slog.Logger,
) error {
	rc := reconciler.New(reconciler.Config{
		Interval:       time.Duration(cfg.CleanupIntervalMinutes) * time.Minute,
		GracePeriod:    time.Duration(cfg.LabGracePeriodDays) * 24 * time.Hour,
		OrphanNSGrace:  time.Duration(cfg.OrphanNSGraceDays) * 24 * time.Hour,
		StudentTTLDays: cfg.LabTTLStudentDays,
		TeacherTTLDays: cfg.LabTTLTeacherDays,
	}, cluster, deployments, users, orch, auditWriter, logger)

	rc.Run(ctx)
	return nil
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	cluster kubernetes.Interface,
	metricsReg *prometheus.Registry,
	auditWriter *audit.Writer,
	deployments *deployment.Store,
	orch *orchestrator.Orchestrator,
	logger *slog.Logger,
) error {
	resolver := auth.HeaderResolver{}
	srv := httpserver.NewServer(cfg, logger, pool, rdb, cluster, metricsReg, resolver)

	rateLimiter := auth.NewRateLimiter(rdb, "createlab", int64(cfg.CreateLabRateLimitMax), time.Duration(cfg.CreateLabRateLimitWindowMinutes)*time.Minute)

	catalogHandler := catalog.NewHandler(pool, logger, auditWriter)
	quotaHandler := quota.NewHandler(pool, logger, auditWriter)
	userHandler := user.NewHandler(pool, logger, auditWriter)
	auditHandler := audit.NewHandler(pool, logger)
	labHandler := lab.NewHandler(deployments, orch, cluster, cfg.UserNamespacePrefix, cfg.LabTTLStudentDays, cfg.LabTTLTeacherDays, rateLimiter, logger)

	srv.APIRouter.Mount("/catalog", catalogHandler.Routes())
	srv.APIRouter.Mount("/labs", labHandler.Routes())

	srv.APIRouter.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireMinRole(auth.RoleAdmin))
		r.Mount("/catalog", catalogHandler.AdminRoutes())
		r.Mount("/users", userHandler.Routes())
		r.Mount("/users/{id}/quota", quotaHandler.AdminRoutes())
		r.Mount("/audit-log", auditHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
