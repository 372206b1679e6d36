package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// ContactRepository reads CRM contact records. A missing contact is not an
// error: lookups return nil so ticket reads can fall back to the contact
// fields stored on the ticket itself.
type ContactRepository interface {
	FindByPhone(ctx context.Context, tenantID, phone string) (*domain.Contact, error)
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository instantiates repository.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

// FindByPhone matches on the last 8 digits so country code, area code and
// mobile-prefix differences between channels do not break the lookup.
func (r *contactRepository) FindByPhone(ctx context.Context, tenantID, phone string) (*domain.Contact, error) {
	digits := normalizeDigits(phone)
	if digits == "" {
		return nil, nil
	}
	if len(digits) > 8 {
		digits = digits[len(digits)-8:]
	}

	const query = `
        SELECT id, tenant_id, name, phone, email, photo, active, created_at
        FROM contacts
        WHERE tenant_id=$1 AND active=TRUE
          AND regexp_replace(phone, '\D', '', 'g') LIKE '%' || $2
        LIMIT 1`
	var contact domain.Contact
	if err := r.pool.QueryRow(ctx, query, tenantID, digits).Scan(
		&contact.ID,
		&contact.TenantID,
		&contact.Name,
		&contact.Phone,
		&contact.Email,
		&contact.Photo,
		&contact.Active,
		&contact.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func normalizeDigits(phone string) string {
	var b strings.Builder
	for _, ch := range phone {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
