package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notifier delivers a booking notification to a user. Implementations must
// tolerate being called more than once for the same appointment and title
// without delivering twice.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, appointmentID uuid.UUID) error
}

// PgNotifier writes notification rows. The partial unique index on
// (appointment_id, title) makes retried deliveries no-ops.
type PgNotifier struct {
	pool *pgxpool.Pool
}

func NewPgNotifier(pool *pgxpool.Pool) *PgNotifier {
	return &PgNotifier{pool: pool}
}

func (n *PgNotifier) Notify(ctx context.Context, userID uuid.UUID, title, message string, appointmentID uuid.UUID) error {
	_, err := n.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, message, appointment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (appointment_id, title) WHERE appointment_id IS NOT NULL DO NOTHING
	`, uuid.New(), userID, title, message, appointmentID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
