package store

import (
	"context"
	"database/sql"
	"fmt"

	"convtrack/api/models"
)

// CustomerStore looks up previously-known buyer records so the dispatcher
// can backfill missing attributes before normalization. A miss or a failed
// query means "no supplemental data available"; it is never fatal.
type CustomerStore struct {
	db *sql.DB
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// FindByIdentity matches on raw email first, then raw phone. Returns
// (nil, nil) when nothing is known.
func (s *CustomerStore) FindByIdentity(ctx context.Context, email, phone string) (*models.Customer, error) {
	if email == "" && phone == "" {
		return nil, nil
	}

	customer := &models.Customer{}
	query := `
		SELECT email, phone, first_name, last_name, city, state, zip_code
		FROM customers
		WHERE (email = $1 AND $1 <> '') OR (phone = $2 AND $2 <> '')
		ORDER BY (email = $1 AND $1 <> '') DESC
		LIMIT 1;
	`
	err := s.db.QueryRowContext(ctx, query, email, phone).Scan(
		&customer.Email,
		&customer.Phone,
		&customer.FirstName,
		&customer.LastName,
		&customer.City,
		&customer.State,
		&customer.ZipCode,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	return customer, nil
}
