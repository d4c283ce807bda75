package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Settler finishes bookings whose interval has ended, or whose payment never
// arrived within hold, and reports how many it touched.
type Settler interface {
	SettleElapsed(ctx context.Context, limit int) (int, error)
	ExpireUnpaid(ctx context.Context, hold time.Duration, limit int) (int, error)
}

// Leader grants exclusive right to sweep. Acquire returns ok=false while
// another instance holds it; release must be called once ok is true.
type Leader interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

type SweeperConfig struct {
	Interval   time.Duration
	BatchSize  int
	RetryEvery time.Duration
	// PaymentHold is how long a pending booking keeps its slot while
	// waiting for payment.
	PaymentHold time.Duration
}

// Sweeper periodically releases unpaid holds and settles elapsed sessions so
// the booking history does not keep stale pending rows around.
type Sweeper struct {
	settler     Settler
	leader      Leader
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	retryEvery  time.Duration
	paymentHold time.Duration
}

func NewSweeper(settler Settler, leader Leader, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 30 * time.Second
	}
	if cfg.PaymentHold <= 0 {
		cfg.PaymentHold = 30 * time.Minute
	}
	return &Sweeper{
		settler:     settler,
		leader:      leader,
		logger:      logger,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		retryEvery:  cfg.RetryEvery,
		paymentHold: cfg.PaymentHold,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if s.leader != nil {
		release, ok := s.lead(ctx)
		if !ok {
			return
		}
		defer release()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately so a restart catches up without waiting a full tick.
	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// lead blocks until this instance holds the leader lock or ctx ends.
func (s *Sweeper) lead(ctx context.Context) (func(), bool) {
	for {
		release, ok, err := s.leader.Acquire(ctx)
		switch {
		case err != nil:
			s.logger.Error("sweeper: leader election failed", "err", err)
		case ok:
			s.logger.Info("sweeper: leadership acquired")
			return release, true
		default:
			s.logger.Debug("sweeper: another instance is sweeping")
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(s.retryEvery):
		}
	}
}

// sweepOnce expires unpaid holds, then settles every elapsed booking.
func (s *Sweeper) sweepOnce(ctx context.Context) int {
	expired := s.drain(ctx, "expire", func(ctx context.Context) (int, error) {
		return s.settler.ExpireUnpaid(ctx, s.paymentHold, s.batchSize)
	})
	if expired > 0 {
		s.logger.Info("sweeper: released unpaid bookings", "count", expired, "hold", s.paymentHold.String())
	}
	settled := s.drain(ctx, "settle", func(ctx context.Context) (int, error) {
		return s.settler.SettleElapsed(ctx, s.batchSize)
	})
	if settled > 0 {
		s.logger.Info("sweeper: settled elapsed bookings", "count", settled)
	}
	return expired + settled
}

// drain calls step one batch at a time until a short batch or an error.
func (s *Sweeper) drain(ctx context.Context, name string, step func(context.Context) (int, error)) int {
	total := 0
	for ctx.Err() == nil {
		n, err := step(ctx)
		if err != nil {
			s.logger.Error("sweeper: "+name+" failed", "err", err)
			break
		}
		total += n
		if n < s.batchSize {
			break
		}
	}
	return total
}
