// Package registry implements periodic self-registration with the platform
// registry: the module's registration metadata, including a live health
// check, is written to a Redis key with a TTL so the platform can discover
// modules and notice when one stops renewing its entry.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/io-pipeline/module-echo/pkg/config"
	"github.com/io-pipeline/module-echo/pkg/logger"
	"github.com/io-pipeline/module-echo/pkg/metrics"
	"github.com/io-pipeline/module-echo/pkg/proto"
	"github.com/io-pipeline/module-echo/pkg/resilience"
)

// KV is the key-value store registrations are written to. *redis.Client
// implements it.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Registrar produces the metadata to announce. *echo.Service implements it.
type Registrar interface {
	GetRegistration(ctx context.Context, req *proto.RegistrationRequest) (*proto.RegistrationMetadata, error)
}

// Announcer periodically announces the module to the registry.
type Announcer struct {
	kv         KV
	registrar  Registrar
	cfg        config.RegistryConfig
	moduleName string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewAnnouncer creates an Announcer for the named module. The metrics
// argument may be nil.
func NewAnnouncer(kv KV, registrar Registrar, cfg config.RegistryConfig, moduleName string, m *metrics.Metrics) *Announcer {
	return &Announcer{
		kv:         kv,
		registrar:  registrar,
		cfg:        cfg,
		moduleName: moduleName,
		metrics:    m,
		logger:     logger.WithComponent("registry-announcer"),
	}
}

// Key returns the registry key this announcer writes to.
func (a *Announcer) Key() string {
	return fmt.Sprintf("%s:%s", a.cfg.KeyPrefix, a.moduleName)
}

// Run announces immediately and then on every interval tick until ctx is
// cancelled. A failed announcement is logged and retried on the next tick;
// Run itself only returns when ctx is done.
func (a *Announcer) Run(ctx context.Context) error {
	a.logger.Info("registry announcer started",
		"key", a.Key(),
		"interval", a.cfg.Interval,
		"ttl", a.cfg.TTL,
	)

	if err := a.announceOnce(ctx); err != nil {
		a.logger.Error("initial announcement failed", "error", err)
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("registry announcer stopped")
			return nil
		case <-ticker.C:
			if err := a.announceOnce(ctx); err != nil {
				a.logger.Error("announcement failed", "error", err)
			}
		}
	}
}

// announceOnce bounds a single announcement to the tick interval so a hung
// registry write cannot stall the loop past its next scheduled tick.
func (a *Announcer) announceOnce(ctx context.Context) error {
	return resilience.WithTimeout(ctx, a.cfg.Interval, "registry-announce", func(ctx context.Context) error {
		return a.Announce(ctx)
	})
}

// Announce runs a health-checked registration and writes the resulting
// metadata to the registry with the configured TTL, retrying transient
// store failures with backoff.
func (a *Announcer) Announce(ctx context.Context) error {
	// An empty test request exercises the real process path without
	// requiring a document.
	md, err := a.registrar.GetRegistration(ctx, &proto.RegistrationRequest{
		TestRequest: &proto.ProcessRequest{},
	})
	if err != nil {
		a.record("error")
		return fmt.Errorf("building registration metadata: %w", err)
	}

	payload, err := json.Marshal(md)
	if err != nil {
		a.record("error")
		return fmt.Errorf("marshaling registration metadata: %w", err)
	}

	err = resilience.Retry(ctx, "registry-announce", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
	}, func() error {
		return a.kv.Set(ctx, a.Key(), payload, a.cfg.TTL)
	})
	if err != nil {
		a.record("error")
		return fmt.Errorf("writing registration to registry: %w", err)
	}

	a.record("ok")
	a.logger.Debug("module announced",
		"key", a.Key(),
		"health_check_passed", md.HealthCheckPassed,
	)
	return nil
}

func (a *Announcer) record(status string) {
	if a.metrics != nil {
		a.metrics.RegistryAnnouncesTotal.WithLabelValues(status).Inc()
	}
}
