package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/grpcx"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		service string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the service's gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: timeout})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()
			if err := grpcx.CheckHealth(ctx, conn, service); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: SERVING\n", addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9093", "gRPC address")
	cmd.Flags().StringVar(&service, "service", "booking-service", "health service name (empty for the whole server)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "health check timeout")
	return cmd
}
