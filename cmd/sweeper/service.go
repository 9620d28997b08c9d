package main

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/checkout/reservation"
	"github.com/seatswap/seatswap-backend/pkg/config"
	"github.com/seatswap/seatswap-backend/pkg/logger"
	"github.com/seatswap/seatswap-backend/pkg/metrics"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 100
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      dbClient
	Metrics *metrics.SweeperMetrics
}

// Service reclaims expired ticket holds on a fixed interval. The reserve
// predicate reclaims lazily on contention; the sweep just keeps idle
// inventory from sitting in reserved state until someone wants it.
type Service struct {
	cfg       *config.Config
	logg      *logger.Logger
	db        dbClient
	metrics   *metrics.SweeperMetrics
	interval  time.Duration
	batchSize int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}

	interval := params.Config.Sweeper.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	batch := params.Config.Sweeper.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &Service{
		cfg:       params.Config,
		logg:      params.Logger,
		db:        params.DB,
		metrics:   params.Metrics,
		interval:  interval,
		batchSize: batch,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.sweepOnce(ctx); err != nil {
			s.metrics.IncFailure()
			s.logg.Error(ctx, "reservation sweep failed", err)
		}

		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sweeper context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweepOnce drains every expired hold currently visible, one batch per
// transaction so a failure never rolls back earlier progress.
func (s *Service) sweepOnce(ctx context.Context) error {
	started := time.Now()
	var total int64

	for {
		var reclaimed int64
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := reservation.SweepExpired(ctx, tx, s.batchSize)
			if err != nil {
				return err
			}
			reclaimed = n
			return nil
		})
		if err != nil {
			return err
		}

		total += reclaimed
		if reclaimed < int64(s.batchSize) {
			break
		}
	}

	s.metrics.ObserveDuration(time.Since(started))
	s.metrics.AddReclaimed(total)
	if total > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"reclaimed": total}), "reclaimed expired reservations")
	}
	return nil
}
