package redeem

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paydesk/internal/common/database"
	"paydesk/internal/common/money"
)

// PostgresStore implements Store using PostgreSQL. All balance mutations are
// single conditional UPDATEs; the guards live in the WHERE clause so two
// concurrent writers can never overspend the balance.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new redeem store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const redeemColumns = `
	id, entity_id, player_id,
	total_minor, paid_minor, hold_minor, remaining_minor, currency,
	status, remarks, created_at, updated_at, completed_at
`

// Create inserts a new redeem request
func (s *PostgresStore) Create(ctx context.Context, req *RedeemRequest) error {
	query := `
		INSERT INTO redeem_requests (` + redeemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.Exec(ctx, query,
		req.ID, req.EntityID, req.PlayerID,
		req.TotalAmount.AmountMinor, req.PaidAmount.AmountMinor,
		req.HoldAmount.AmountMinor, req.RemainingAmount.AmountMinor,
		req.TotalAmount.Currency,
		req.Status, req.Remarks, req.CreatedAt, req.UpdatedAt, req.CompletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("redeem request %s: %w", req.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating redeem request: %w", err)
	}

	return nil
}

// Get retrieves a redeem request by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*RedeemRequest, error) {
	query := `SELECT ` + redeemColumns + ` FROM redeem_requests WHERE id = $1`

	row := s.db.QueryRow(ctx, query, id)
	return scanRedeem(row)
}

// ListEligible returns open requests whose unreserved balance covers the
// amount, largest remaining balance first, oldest first on ties.
func (s *PostgresStore) ListEligible(ctx context.Context, entityID string, amount money.Money, limit int) ([]*RedeemRequest, error) {
	query := `
		SELECT ` + redeemColumns + `
		FROM redeem_requests
		WHERE entity_id = $1
		  AND status = 'open'
		  AND currency = $2
		  AND remaining_minor - hold_minor >= $3
		ORDER BY remaining_minor DESC, created_at ASC
		LIMIT $4
	`

	rows, err := s.db.Query(ctx, query, entityID, amount.Currency, amount.AmountMinor, limit)
	if err != nil {
		return nil, fmt.Errorf("listing eligible redeem requests: %w", err)
	}
	defer rows.Close()

	var requests []*RedeemRequest
	for rows.Next() {
		req, err := scanRedeemRows(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// ApplyPayment moves amount from remaining to paid in one conditional update.
// Guards: the row is open, remaining covers the amount, and either the
// payment consumes a hold of that size (fromHold) or it fits the unreserved
// portion. Reaching zero remaining completes the request.
func (s *PostgresStore) ApplyPayment(ctx context.Context, id string, amount money.Money, fromHold bool) (*RedeemRequest, error) {
	query := `
		UPDATE redeem_requests
		SET paid_minor = paid_minor + $2,
			remaining_minor = remaining_minor - $2,
			hold_minor = hold_minor - CASE WHEN $3 THEN $2 ELSE 0 END,
			status = CASE WHEN remaining_minor - $2 = 0 THEN 'completed' ELSE status END,
			completed_at = CASE WHEN remaining_minor - $2 = 0 THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1
		  AND status = 'open'
		  AND currency = $4
		  AND (($3 AND hold_minor >= $2) OR (NOT $3 AND remaining_minor - hold_minor >= $2))
		RETURNING ` + redeemColumns

	row := s.db.QueryRow(ctx, query, id, amount.AmountMinor, fromHold, amount.Currency)
	req, err := scanRedeem(row)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, s.classifyGuardMiss(ctx, id)
		}
		return nil, err
	}
	return req, nil
}

// AdjustHold adds delta to the hold in one conditional update, keeping
// 0 <= hold <= remaining.
func (s *PostgresStore) AdjustHold(ctx context.Context, id string, delta money.Money) (*RedeemRequest, error) {
	query := `
		UPDATE redeem_requests
		SET hold_minor = hold_minor + $2,
			updated_at = now()
		WHERE id = $1
		  AND status = 'open'
		  AND currency = $3
		  AND hold_minor + $2 >= 0
		  AND hold_minor + $2 <= remaining_minor
		RETURNING ` + redeemColumns

	row := s.db.QueryRow(ctx, query, id, delta.AmountMinor, delta.Currency)
	req, err := scanRedeem(row)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, s.classifyGuardMiss(ctx, id)
		}
		return nil, err
	}
	return req, nil
}

// classifyGuardMiss distinguishes a missing row from a failed balance guard
func (s *PostgresStore) classifyGuardMiss(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrInsufficientBalance
}

func scanRedeem(row pgx.Row) (*RedeemRequest, error) {
	var r RedeemRequest
	var total, paid, hold, remaining int64
	var currency string

	err := row.Scan(
		&r.ID, &r.EntityID, &r.PlayerID,
		&total, &paid, &hold, &remaining, &currency,
		&r.Status, &r.Remarks, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning redeem request: %w", err)
	}

	c := money.Currency(currency)
	r.TotalAmount = money.New(total, c)
	r.PaidAmount = money.New(paid, c)
	r.HoldAmount = money.New(hold, c)
	r.RemainingAmount = money.New(remaining, c)
	return &r, nil
}

func scanRedeemRows(rows pgx.Rows) (*RedeemRequest, error) {
	var r RedeemRequest
	var total, paid, hold, remaining int64
	var currency string

	err := rows.Scan(
		&r.ID, &r.EntityID, &r.PlayerID,
		&total, &paid, &hold, &remaining, &currency,
		&r.Status, &r.Remarks, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning redeem request: %w", err)
	}

	c := money.Currency(currency)
	r.TotalAmount = money.New(total, c)
	r.PaidAmount = money.New(paid, c)
	r.HoldAmount = money.New(hold, c)
	r.RemainingAmount = money.New(remaining, c)
	return &r, nil
}

var _ Store = (*PostgresStore)(nil)
