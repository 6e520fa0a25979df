package recharge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paydesk/internal/common/database"
	"paydesk/internal/common/money"
)

// PostgresStore implements Store using PostgreSQL. Update is a single
// conditional UPDATE keyed on the caller's status snapshot, so concurrent
// writers serialize through the WHERE clause rather than through locks.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new recharge store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const rechargeColumns = `
	id, entity_id, player_id,
	amount_minor, bonus_basis_points, bonus_minor, final_minor, currency,
	entity_status, finance_status, verification_status, operations_status,
	tag_type, payment_method_id, payment_account_id, matched_redeem_id,
	proof_ref, proof_via, proof_submitted_at,
	remarks, approved_at, completed_at, created_at, updated_at
`

// Create inserts a new recharge request
func (s *PostgresStore) Create(ctx context.Context, req *RechargeRequest) error {
	query := `
		INSERT INTO recharge_requests (` + rechargeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := s.db.Exec(ctx, query,
		req.ID, req.EntityID, req.PlayerID,
		req.Amount.AmountMinor, req.BonusBasisPoints,
		req.BonusAmount.AmountMinor, req.FinalAmount.AmountMinor,
		req.Amount.Currency,
		req.EntityStatus, req.FinanceStatus, req.VerificationStatus, req.OperationsStatus,
		req.TagType, req.PaymentMethodID, req.PaymentAccountID, req.MatchedRedeemID,
		req.ProofRef, req.ProofVia, req.ProofSubmittedAt,
		req.Remarks, req.ApprovedAt, req.CompletedAt, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("recharge request %s: %w", req.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating recharge request: %w", err)
	}

	return nil
}

// Get retrieves a recharge request by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*RechargeRequest, error) {
	query := `SELECT ` + rechargeColumns + ` FROM recharge_requests WHERE id = $1`

	row := s.db.QueryRow(ctx, query, id)
	return scanRecharge(row)
}

// Update persists all mutable fields of req, guarded on the status snapshot
// the caller loaded. A guard miss on an existing row is a lost race and
// reported as ErrPreconditionFailed.
func (s *PostgresStore) Update(ctx context.Context, req *RechargeRequest, expected StatusSnapshot) error {
	query := `
		UPDATE recharge_requests
		SET entity_status = $2,
			finance_status = $3,
			verification_status = $4,
			operations_status = $5,
			tag_type = $6,
			payment_account_id = $7,
			matched_redeem_id = $8,
			proof_ref = $9,
			proof_via = $10,
			proof_submitted_at = $11,
			remarks = $12,
			approved_at = $13,
			completed_at = $14,
			updated_at = $15
		WHERE id = $1
		  AND entity_status = $16
		  AND finance_status = $17
		  AND verification_status = $18
		  AND operations_status = $19
		  AND tag_type = $20
	`

	tag, err := s.db.Exec(ctx, query,
		req.ID,
		req.EntityStatus, req.FinanceStatus, req.VerificationStatus, req.OperationsStatus,
		req.TagType, req.PaymentAccountID, req.MatchedRedeemID,
		req.ProofRef, req.ProofVia, req.ProofSubmittedAt,
		req.Remarks, req.ApprovedAt, req.CompletedAt, req.UpdatedAt,
		expected.Entity, expected.Finance, expected.Verification, expected.Operations, expected.Tag,
	)
	if err != nil {
		return fmt.Errorf("updating recharge request %s: %w", req.ID, err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, req.ID); err != nil {
			return err
		}
		return ErrPreconditionFailed
	}
	return nil
}

// ListByEntity returns the entity's recharge requests, newest first
func (s *PostgresStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	query := `
		SELECT ` + rechargeColumns + `
		FROM recharge_requests
		WHERE entity_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.list(ctx, query, entityID, limit)
}

// ListFinanceQueue returns requests awaiting a finance decision, oldest first
func (s *PostgresStore) ListFinanceQueue(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	query := `
		SELECT ` + rechargeColumns + `
		FROM recharge_requests
		WHERE entity_id = $1
		  AND finance_status = 'pending'
		  AND entity_status = 'pending'
		ORDER BY created_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, entityID, limit)
}

// ListVerificationQueue returns PT requests with submitted proof awaiting
// verification, oldest first.
func (s *PostgresStore) ListVerificationQueue(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	query := `
		SELECT ` + rechargeColumns + `
		FROM recharge_requests
		WHERE entity_id = $1
		  AND tag_type = 'PT'
		  AND verification_status = 'pending'
		  AND entity_status = 'payment_submitted'
		ORDER BY proof_submitted_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, entityID, limit)
}

// ListOperationsQueue returns verified requests awaiting fulfillment,
// oldest first.
func (s *PostgresStore) ListOperationsQueue(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	query := `
		SELECT ` + rechargeColumns + `
		FROM recharge_requests
		WHERE entity_id = $1
		  AND operations_status IN ('waiting_operations', 'processing')
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, entityID, limit)
}

func (s *PostgresStore) list(ctx context.Context, query, entityID string, limit int) ([]*RechargeRequest, error) {
	rows, err := s.db.Query(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recharge requests: %w", err)
	}
	defer rows.Close()

	var requests []*RechargeRequest
	for rows.Next() {
		req, err := scanRechargeRows(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func scanRecharge(row pgx.Row) (*RechargeRequest, error) {
	var r RechargeRequest
	var amount, bonus, final int64
	var currency string

	err := row.Scan(
		&r.ID, &r.EntityID, &r.PlayerID,
		&amount, &r.BonusBasisPoints, &bonus, &final, &currency,
		&r.EntityStatus, &r.FinanceStatus, &r.VerificationStatus, &r.OperationsStatus,
		&r.TagType, &r.PaymentMethodID, &r.PaymentAccountID, &r.MatchedRedeemID,
		&r.ProofRef, &r.ProofVia, &r.ProofSubmittedAt,
		&r.Remarks, &r.ApprovedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning recharge request: %w", err)
	}

	c := money.Currency(currency)
	r.Amount = money.New(amount, c)
	r.BonusAmount = money.New(bonus, c)
	r.FinalAmount = money.New(final, c)
	return &r, nil
}

func scanRechargeRows(rows pgx.Rows) (*RechargeRequest, error) {
	var r RechargeRequest
	var amount, bonus, final int64
	var currency string

	err := rows.Scan(
		&r.ID, &r.EntityID, &r.PlayerID,
		&amount, &r.BonusBasisPoints, &bonus, &final, &currency,
		&r.EntityStatus, &r.FinanceStatus, &r.VerificationStatus, &r.OperationsStatus,
		&r.TagType, &r.PaymentMethodID, &r.PaymentAccountID, &r.MatchedRedeemID,
		&r.ProofRef, &r.ProofVia, &r.ProofSubmittedAt,
		&r.Remarks, &r.ApprovedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning recharge request: %w", err)
	}

	c := money.Currency(currency)
	r.Amount = money.New(amount, c)
	r.BonusAmount = money.New(bonus, c)
	r.FinalAmount = money.New(final, c)
	return &r, nil
}

var _ Store = (*PostgresStore)(nil)
