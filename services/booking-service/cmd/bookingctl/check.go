package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

type checkOutput struct {
	TutorID   string                 `json:"tutor_id"`
	Interval  string                 `json:"interval"`
	Available bool                   `json:"available"`
	Conflicts []availability.Summary `json:"conflicts"`
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "check <tutor-id>",
		Short: "Check whether a tutor is free for an interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidate, err := parseInterval(from, to)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			engine, closeFn, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := engine.Check(ctx, args[0], candidate)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), checkOutput{
				TutorID:   args[0],
				Interval:  candidate.String(),
				Available: report.Available,
				Conflicts: availability.Summaries(report),
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "interval start (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "interval end (RFC3339)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newNextSlotCmd(opts *rootOptions) *cobra.Command {
	var (
		after     string
		duration  time.Duration
		lookahead time.Duration
	)
	cmd := &cobra.Command{
		Use:   "next-slot <tutor-id>",
		Short: "Find the earliest free slot of a given length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now().UTC()
			if after != "" {
				t, err := time.Parse(time.RFC3339, after)
				if err != nil {
					return fmt.Errorf("invalid --after: %w", err)
				}
				start = t.UTC()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			engine, closeFn, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			slot, err := engine.NextSlot(ctx, args[0], start, duration, lookahead)
			if errors.Is(err, availability.ErrNoSlot) {
				fmt.Fprintf(cmd.OutOrStdout(), "no free %s slot within %s\n", duration, lookahead)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), slot.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "search start (RFC3339, default now)")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "session length")
	cmd.Flags().DurationVar(&lookahead, "lookahead", 14*24*time.Hour, "how far ahead to search")
	return cmd
}

func parseInterval(from, to string) (model.TimeInterval, error) {
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return model.TimeInterval{}, fmt.Errorf("invalid --from: %w", err)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return model.TimeInterval{}, fmt.Errorf("invalid --to: %w", err)
	}
	return model.NewTimeInterval(start, end)
}

func openEngine(ctx context.Context, opts *rootOptions) (*availability.Engine, func(), error) {
	pool, err := opts.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewBookingStore(pool, outbox.NewRepository(pool))
	return availability.NewEngine(store), pool.Close, nil
}
