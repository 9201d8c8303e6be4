package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EscalationRepository stores the append-only pass/cancel audit log.
// Entries are never updated or deleted.
type EscalationRepository interface {
	Append(ctx context.Context, entry *domain.EscalationEntry) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.EscalationEntry, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository builds repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) Append(ctx context.Context, entry *domain.EscalationEntry) error {
	const query = `
        INSERT INTO ticket_escalations (ticket_id, action, actor_id, reason, previous_assignee, new_assignee)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Action,
		entry.ActorID,
		entry.Reason,
		entry.PreviousAssignee,
		entry.NewAssignee,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *escalationRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.EscalationEntry, error) {
	const query = `
        SELECT id, ticket_id, action, actor_id, reason, previous_assignee, new_assignee, created_at
        FROM ticket_escalations WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationEntry
	for rows.Next() {
		var entry domain.EscalationEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.ActorID,
			&entry.Reason,
			&entry.PreviousAssignee,
			&entry.NewAssignee,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
