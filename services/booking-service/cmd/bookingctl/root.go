package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/md-rashed-zaman/tutorbook/libs/config"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	databaseURL string
}

func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "bookingctl",
		Short:        "Operate the tutor booking service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", config.String("DATABASE_URL", ""), "Postgres connection string")
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newNextSlotCmd(opts))
	cmd.AddCommand(newHealthCmd())
	return cmd
}

func (o *rootOptions) open(ctx context.Context) (*db.Pool, error) {
	if o.databaseURL == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return db.Open(ctx, o.databaseURL, db.PoolOptions{MaxConns: 2})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
