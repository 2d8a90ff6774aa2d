package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/pkg/config"
)

type healthProbe struct {
	pingErr  error
	cacheErr error
}

func (p healthProbe) PingContext(context.Context) error        { return p.pingErr }
func (p healthProbe) CountActive(context.Context) (int, error) { return 12, nil }
func (p healthProbe) Count(context.Context) (int, error)       { return 340, nil }
func (p healthProbe) Ping(context.Context) error               { return p.cacheErr }
func (p healthProbe) Counts(context.Context) (map[string]int, error) {
	return map[string]int{"exercises": 30, "gliders": 4, "briefing_topics": 18}, nil
}

func newHealthService(probe healthProbe, cfg *config.Config) *HealthService {
	return NewHealthService(HealthServiceParams{DB: probe, Users: probe, Records: probe, Catalog: probe, Cache: probe, Config: cfg})
}

func TestHealthCheckHealthy(t *testing.T) {
	cfg := &config.Config{Env: config.EnvProduction, JWT: config.JWTConfig{Secret: config.DefaultJWTSecret}}
	report := newHealthService(healthProbe{cacheErr: errors.New("redis down")}, cfg).Check(context.Background())

	assert.True(t, report.Healthy())
	db := report.Checks["database"].(map[string]interface{})
	assert.Equal(t, 12, db["users"])
	assert.Equal(t, 18, db["ground_briefings"])
	assert.Equal(t, HealthStatusDegraded, report.Checks["cache"].(map[string]interface{})["status"])
	auth := report.Checks["authentication"].(map[string]interface{})
	assert.Equal(t, false, auth["jwt_secret_set"])
}

func TestHealthCheckUnhealthyWhenDatabaseDown(t *testing.T) {
	svc := newHealthService(healthProbe{pingErr: errors.New("connection refused")}, nil)

	report := svc.Check(context.Background())
	assert.False(t, report.Healthy())
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	require.Error(t, svc.Ready(context.Background()))
}
