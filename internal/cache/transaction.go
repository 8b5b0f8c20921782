package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

// txFn runs inside a transaction; returning an error rolls it back.
type txFn func(ctx context.Context, tx *sql.Tx) error

// runInTransaction commits fn's work if it returns nil and rolls back
// otherwise, including when fn panics.
func runInTransaction(ctx context.Context, db *sql.DB, fn txFn) (err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrUnavailable, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to roll back cache transaction after panic",
					slog.String("error", rbErr.Error()),
					slog.Any("panic", p))
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("failed to roll back cache transaction",
				slog.String("rollback_error", rbErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf("error rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", ErrUnavailable, err)
	}
	return nil
}
