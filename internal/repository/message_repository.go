package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// MessageRepository reads conversation messages for derived ticket fields.
// Message persistence and delivery belong to the channel collaborator.
type MessageRepository interface {
	CountByTicket(ctx context.Context, ticketID string) (int, error)
	CountUnreadFromContact(ctx context.Context, ticketID string) (int, error)
	// Latest returns the newest message of a ticket, or nil when none.
	Latest(ctx context.Context, ticketID string) (*domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE ticket_id=$1`, ticketID).Scan(&count)
	return count, err
}

func (r *messageRepository) CountUnreadFromContact(ctx context.Context, ticketID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE ticket_id=$1 AND sender='CONTACT' AND read=FALSE`,
		ticketID).Scan(&count)
	return count, err
}

func (r *messageRepository) Latest(ctx context.Context, ticketID string) (*domain.Message, error) {
	const query = `
        SELECT id, ticket_id, sender, sender_id, body, read, created_at
        FROM messages WHERE ticket_id=$1 ORDER BY created_at DESC LIMIT 1`
	var msg domain.Message
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.Sender,
		&msg.SenderID,
		&msg.Body,
		&msg.Read,
		&msg.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}
