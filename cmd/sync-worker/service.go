package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/fieldreport/internal/syncer"
	"github.com/angelmondragon/fieldreport/pkg/background"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

const (
	defaultRestartDelay = time.Second
	maxBackoff          = 30 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type pinger interface {
	Ping(context.Context) error
}

type drainRunner interface {
	Run(ctx context.Context, pass background.PassFunc) error
}

type passRunner interface {
	RunPass(ctx context.Context, trigger enums.SyncTrigger) (syncer.PassResult, error)
}

type ServiceParams struct {
	Logger  *logger.Logger
	DB      pinger
	Redis   pinger
	Drainer drainRunner
	Syncer  passRunner
}

// Service runs background drains requested by agents sharing the same
// outbox store.
type Service struct {
	logg         *logger.Logger
	db           pinger
	redis        pinger
	drainer      drainRunner
	syncer       passRunner
	restartDelay time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Drainer == nil {
		return nil, errors.New("drainer is required")
	}
	if params.Syncer == nil {
		return nil, errors.New("sync coordinator is required")
	}
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		redis:        params.Redis,
		drainer:      params.Drainer,
		syncer:       params.Syncer,
		restartDelay: defaultRestartDelay,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run keeps the drain loop alive until ctx is canceled, restarting it with
// backoff when the subscription drops.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.restartDelay
	for {
		err := s.drainer.Run(ctx, s.pass)
		if ctx.Err() != nil {
			s.logg.Info(ctx, "sync worker context canceled")
			return ctx.Err()
		}
		if err != nil {
			s.logg.Error(ctx, "drain loop stopped", err)
			backoff = nextBackoff(backoff, s.restartDelay, maxBackoff)
		} else {
			backoff = s.restartDelay
		}
		if err := s.sleep(ctx, withJitter(backoff)); err != nil {
			return err
		}
	}
}

func (s *Service) pass(ctx context.Context) error {
	result, err := s.syncer.RunPass(ctx, enums.SyncTriggerBackground)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"offline":   result.Offline,
		"attempted": result.Attempted,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	}), "background drain pass finished")
	return nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
