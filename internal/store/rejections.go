package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fleet-tracker/internal/domain"
	"fleet-tracker/pkg/e"
)

// RejectionStore is the append-only audit sink for readings that failed the
// quality gate. Rows are never updated.
type RejectionStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRejectionStore(pool *pgxpool.Pool, logger *zap.Logger) *RejectionStore {
	return &RejectionStore{pool: pool, logger: logger}
}

func (s *RejectionStore) Insert(ctx context.Context, rr *domain.RejectedReading) error {
	const op = "store.Rejection.Insert"

	const query = `
		INSERT INTO rejected_readings (raw_payload, reasons, rejected_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.pool.Exec(ctx, query, string(rr.RawPayload), rr.Reasons, rr.RejectedAt)
	if err != nil {
		s.logger.Error("rejection insert failed",
			zap.String("op", op),
			zap.Strings("reasons", rr.Reasons),
			zap.Error(err),
		)
		return e.WrapError(ctx, op, err)
	}
	return nil
}
