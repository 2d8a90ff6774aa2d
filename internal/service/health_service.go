package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/pkg/config"
)

// Health status values.
const (
	HealthStatusHealthy    = "healthy"
	HealthStatusUnhealthy  = "unhealthy"
	HealthStatusConfigured = "configured"
	HealthStatusDegraded   = "degraded"
)

const healthServiceName = "Gliding Club Training Records"

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type activeUserCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type recordCounter interface {
	Count(ctx context.Context) (int, error)
}

type catalogCounter interface {
	Counts(ctx context.Context) (map[string]int, error)
}

type cachePinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]interface{} `json:"checks"`
}

// Healthy reports whether the instance should receive traffic.
func (r *HealthReport) Healthy() bool {
	return r.Status == HealthStatusHealthy
}

// HealthServiceParams groups the probes used by HealthService.
type HealthServiceParams struct {
	DB      dbPinger
	Users   activeUserCounter
	Records recordCounter
	Catalog catalogCounter
	Cache   cachePinger
	Config  *config.Config
	Logger  *zap.Logger
	Timeout time.Duration
}

// HealthService reports the state of the database, cache and configuration.
type HealthService struct {
	params HealthServiceParams
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthService constructs the service.
func NewHealthService(params HealthServiceParams) *HealthService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.Timeout <= 0 {
		params.Timeout = 3 * time.Second
	}
	if params.Config == nil {
		params.Config = &config.Config{}
	}
	return &HealthService{params: params, logger: logger, now: time.Now}
}

// Ready runs the cheapest possible database round trip.
func (s *HealthService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.params.Timeout)
	defer cancel()
	return s.params.DB.PingContext(ctx)
}

// Check builds the full report. Only a database failure makes the instance
// unhealthy; a missing cache degrades dashboards and lockout but not the API.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.params.Timeout)
	defer cancel()

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Service:   healthServiceName,
		Timestamp: s.now().UTC(),
		Checks:    map[string]interface{}{},
	}

	database, ok := s.checkDatabase(ctx)
	report.Checks["database"] = database
	if !ok {
		report.Status = HealthStatusUnhealthy
	}
	report.Checks["cache"] = s.checkCache(ctx)

	cfg := s.params.Config
	report.Checks["email"] = map[string]interface{}{
		"status":              HealthStatusConfigured,
		"provider":            cfg.Email.Provider,
		"sendgrid_configured": cfg.Email.SendgridAPIKey != "",
		"from_address":        cfg.Email.FromAddress,
	}
	report.Checks["authentication"] = map[string]interface{}{
		"status":         HealthStatusConfigured,
		"jwt_secret_set": cfg.JWT.Secret != "" && (cfg.Env != config.EnvProduction || cfg.JWT.Secret != config.DefaultJWTSecret),
		"social_providers": map[string]bool{
			"google":    cfg.OAuth.Google.Enabled(),
			"microsoft": cfg.OAuth.Microsoft.Enabled(),
		},
	}
	report.Checks["security"] = map[string]interface{}{
		"status":                   HealthStatusConfigured,
		"environment":              cfg.Env,
		"allowed_origins_set":      len(cfg.CORS.AllowedOrigins) > 0,
		"login_lockout_enabled":    cfg.Lockout.FailureLimit > 0,
		"storage_driver":           cfg.Storage.Driver,
		"signed_url_secret_is_dev": cfg.Storage.SignedURLSecret == "" || cfg.Storage.SignedURLSecret == "dev_storage_secret",
	}

	s.logger.Info("health check completed", zap.String("status", report.Status))
	return report
}

func (s *HealthService) checkDatabase(ctx context.Context) (map[string]interface{}, bool) {
	unhealthy := func(err error) (map[string]interface{}, bool) {
		s.logger.Error("database health check failed", zap.Error(err))
		return map[string]interface{}{"status": HealthStatusUnhealthy, "error": err.Error()}, false
	}
	if err := s.params.DB.PingContext(ctx); err != nil {
		return unhealthy(err)
	}
	users, err := s.params.Users.CountActive(ctx)
	if err != nil {
		return unhealthy(err)
	}
	records, err := s.params.Records.Count(ctx)
	if err != nil {
		return unhealthy(err)
	}
	catalog, err := s.params.Catalog.Counts(ctx)
	if err != nil {
		return unhealthy(err)
	}
	return map[string]interface{}{
		"status":           HealthStatusHealthy,
		"connection":       "connected",
		"users":            users,
		"training_records": records,
		"exercises":        catalog["exercises"],
		"gliders":          catalog["gliders"],
		"ground_briefings": catalog["briefing_topics"],
	}, true
}

func (s *HealthService) checkCache(ctx context.Context) map[string]interface{} {
	if s.params.Cache == nil {
		return map[string]interface{}{"status": HealthStatusDegraded, "error": "not configured"}
	}
	if err := s.params.Cache.Ping(ctx); err != nil {
		s.logger.Warn("cache health check failed", zap.Error(err))
		return map[string]interface{}{"status": HealthStatusDegraded, "error": err.Error()}
	}
	return map[string]interface{}{"status": HealthStatusHealthy}
}
