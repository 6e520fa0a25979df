package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paydesk/internal/common/database"
)

// Store provides payment account data access
type Store interface {
	Create(ctx context.Context, account *PaymentMethodAccount) error
	Get(ctx context.Context, id string) (*PaymentMethodAccount, error)
	ListByMethod(ctx context.Context, paymentMethodID string) ([]*PaymentMethodAccount, error)
	SetStatus(ctx context.Context, id string, status Status) error
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new account store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new payment account
func (s *PostgresStore) Create(ctx context.Context, account *PaymentMethodAccount) error {
	query := `
		INSERT INTO payment_method_accounts (
			id, payment_method_id, holder_name, account_number, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		account.ID,
		account.PaymentMethodID,
		account.HolderName,
		account.AccountNumber,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", account.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating account: %w", err)
	}

	return nil
}

// Get retrieves a payment account by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*PaymentMethodAccount, error) {
	query := `
		SELECT id, payment_method_id, holder_name, account_number, status,
			   created_at, updated_at
		FROM payment_method_accounts
		WHERE id = $1
	`

	var a PaymentMethodAccount
	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PaymentMethodID, &a.HolderName, &a.AccountNumber, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return &a, nil
}

// ListByMethod lists accounts belonging to a payment method
func (s *PostgresStore) ListByMethod(ctx context.Context, paymentMethodID string) ([]*PaymentMethodAccount, error) {
	query := `
		SELECT id, payment_method_id, holder_name, account_number, status,
			   created_at, updated_at
		FROM payment_method_accounts
		WHERE payment_method_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(ctx, query, paymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*PaymentMethodAccount
	for rows.Next() {
		var a PaymentMethodAccount
		err := rows.Scan(
			&a.ID, &a.PaymentMethodID, &a.HolderName, &a.AccountNumber, &a.Status,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, nil
}

// SetStatus activates or deactivates an account
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_method_accounts
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("updating account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}
