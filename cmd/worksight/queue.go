package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/okian/worksight/internal/adapters/repository"
	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the durable delivery queue",
	}
	cmd.AddCommand(newQueueStatsCmd(), newQueueDeadLettersCmd(), newQueueRequeueCmd())
	return cmd
}

// withStore opens the configured queue for one operator command.
func withStore(cmd *cobra.Command, fn func(store *repository.SQLiteStore) error) error {
	cfg, closeLog, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := repository.Open(cfg.QueuePath())
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-mostly
	return fn(store)
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pending, ready and dead-lettered counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store *repository.SQLiteStore) error {
				st, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

type deadLetterView struct {
	ID             int64     `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	LastError      string    `json:"last_error"`
}

func newQueueDeadLettersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List dead-lettered rows with their last error",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store *repository.SQLiteStore) error {
				rows, err := store.DeadLetters(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := make([]deadLetterView, 0, len(rows))
				for _, r := range rows {
					out = append(out, deadLetterView{
						ID:             r.ID,
						IdempotencyKey: r.IdempotencyKey,
						Attempt:        r.Attempt,
						EnqueuedAt:     r.EnqueuedAt,
						LastError:      r.LastError,
					})
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to list")
	return cmd
}

func newQueueRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Make every dead-lettered row eligible for delivery again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store *repository.SQLiteStore) error {
				n, err := store.RequeueDeadLetters(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"requeued": n})
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
