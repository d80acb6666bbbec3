// Package service exposes the optional healthz and metrics endpoints of a run.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum-optimism/infra/op-subtest/metrics"
	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultHealthzAddr = "0.0.0.0:8080"
	DefaultMetricsAddr = "0.0.0.0:7300"
)

// Config holds the listen addresses of the endpoints
type Config struct {
	HealthzAddr string
	MetricsAddr string
	Log         log.Logger
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
}

func New(cfg Config) *Service {
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = DefaultHealthzAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Service{
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
		cfg:     cfg,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.cfg.Log.Info("service starting")

	go func() {
		s.cfg.Log.Info("starting healthz server", "addr", s.cfg.HealthzAddr)
		if err := s.Healthz.Start(ctx, s.cfg.HealthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		s.cfg.Log.Info("starting metrics server", "addr", s.cfg.MetricsAddr)
		if err := s.Metrics.Start(ctx, s.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	s.cfg.Log.Info("service started")
}

func (s *Service) Shutdown() {
	s.cfg.Log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.cfg.Log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.cfg.Log.Info("metrics stopped")

	s.cfg.Log.Info("service stopped")
}
