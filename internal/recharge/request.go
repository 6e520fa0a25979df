// Package recharge implements the deposit request lifecycle: intake by
// support, finance approval with one-time routing tag assignment, payment
// proof submission, independent verification for peer-funded requests, and
// operations fulfillment.
package recharge

import (
	"errors"
	"time"

	"paydesk/internal/common/money"
)

// TagType is the routing strategy locked in at finance approval.
type TagType string

const (
	// TagUnset means finance has not yet chosen a routing strategy.
	TagUnset TagType = ""
	// TagCT routes the recharge through a company-owned account; finance
	// itself verifies the payment.
	TagCT TagType = "CT"
	// TagPT funds the recharge from a matched redeem request; an
	// independent verification role checks the payment.
	TagPT TagType = "PT"
)

// Phase is the discriminated view of the four coupled status dimensions.
// Mutations go through the guarded methods below, so combinations outside
// these phases cannot be produced.
type Phase string

const (
	PhaseAwaitingFinance      Phase = "awaiting_finance"
	PhaseAwaitingPayment      Phase = "awaiting_payment"
	PhaseAwaitingVerification Phase = "awaiting_verification"
	PhaseAwaitingOperations   Phase = "awaiting_operations"
	PhaseCompleted            Phase = "completed"
	PhaseRejected             Phase = "rejected"
)

// RechargeRequest represents a request to credit a player's game account.
type RechargeRequest struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id"`
	PlayerID string `json:"player_id"`

	Amount           money.Money `json:"amount"`
	BonusBasisPoints int64       `json:"bonus_basis_points"`
	BonusAmount      money.Money `json:"bonus_amount"`
	FinalAmount      money.Money `json:"final_amount"`

	EntityStatus       EntityStatus       `json:"entity_status"`
	FinanceStatus      FinanceStatus      `json:"finance_status"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	OperationsStatus   OperationsStatus   `json:"operations_status"`

	TagType          TagType `json:"tag_type,omitempty"`
	PaymentMethodID  string  `json:"payment_method_id,omitempty"`
	PaymentAccountID string  `json:"payment_account_id,omitempty"`
	MatchedRedeemID  string  `json:"matched_redeem_id,omitempty"`

	// ProofRef is an opaque reference to the proof-of-payment artifact;
	// the core never interprets or fetches it.
	ProofRef         string     `json:"proof_ref,omitempty"`
	ProofVia         string     `json:"proof_via,omitempty"`
	ProofSubmittedAt *time.Time `json:"proof_submitted_at,omitempty"`

	Remarks     string     `json:"remarks,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewRechargeRequest creates a request with all statuses at their initial
// value and no routing tag. The bonus is expressed in basis points of the
// requested amount.
func NewRechargeRequest(id, entityID, playerID, paymentMethodID string, amount money.Money, bonusBasisPoints int64) (*RechargeRequest, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if entityID == "" {
		return nil, errors.New("entity_id is required")
	}
	if playerID == "" {
		return nil, errors.New("player_id is required")
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if bonusBasisPoints < 0 {
		return nil, ErrInvalidAmount
	}

	bonus := amount.Percentage(bonusBasisPoints)
	now := time.Now().UTC()

	return &RechargeRequest{
		ID:                 id,
		EntityID:           entityID,
		PlayerID:           playerID,
		Amount:             amount,
		BonusBasisPoints:   bonusBasisPoints,
		BonusAmount:        bonus,
		FinalAmount:        amount.MustAdd(bonus),
		EntityStatus:       EntityPending,
		FinanceStatus:      FinancePending,
		VerificationStatus: VerificationNotRequired,
		OperationsStatus:   OpsPending,
		TagType:            TagUnset,
		PaymentMethodID:    paymentMethodID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// StatusSnapshot captures the coupled status dimensions of a request at a
// point in time, used as the expected-prior-state of a conditional update.
type StatusSnapshot struct {
	Entity       EntityStatus
	Finance      FinanceStatus
	Verification VerificationStatus
	Operations   OperationsStatus
	Tag          TagType
}

// Snapshot returns the current status snapshot
func (r *RechargeRequest) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		Entity:       r.EntityStatus,
		Finance:      r.FinanceStatus,
		Verification: r.VerificationStatus,
		Operations:   r.OperationsStatus,
		Tag:          r.TagType,
	}
}

// IsTerminal reports whether the request reached a terminal state
func (r *RechargeRequest) IsTerminal() bool {
	switch r.OperationsStatus {
	case OpsCompleted, OpsRejected, OpsCancelled:
		return true
	}
	return r.EntityStatus == EntityRejected || r.FinanceStatus == FinanceRejected
}

// Phase returns the discriminated lifecycle phase
func (r *RechargeRequest) Phase() Phase {
	switch {
	case r.OperationsStatus == OpsCompleted:
		return PhaseCompleted
	case r.IsTerminal():
		return PhaseRejected
	case r.TagType == TagUnset:
		return PhaseAwaitingFinance
	case r.EntityStatus == EntityPaymentPending:
		return PhaseAwaitingPayment
	case r.TagType == TagPT && r.VerificationStatus == VerificationPending:
		return PhaseAwaitingVerification
	default:
		return PhaseAwaitingOperations
	}
}

func (r *RechargeRequest) requireTag(tag TagType) error {
	if r.TagType != tag {
		return &TransitionError{Dimension: "tag_type", From: string(r.TagType), To: string(tag)}
	}
	return nil
}

// ApproveCT locks the request into the CT strategy. Account eligibility is
// validated by the resolver before this is called.
func (r *RechargeRequest) ApproveCT(accountID string) error {
	if r.TagType != TagUnset {
		return &TransitionError{Dimension: "tag_type", From: string(r.TagType), To: string(TagCT)}
	}

	finance, err := moveFinance(r.FinanceStatus, FinanceApproved)
	if err != nil {
		return err
	}
	entity, err := moveEntity(r.EntityStatus, EntityPaymentPending)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	r.TagType = TagCT
	r.PaymentAccountID = accountID
	r.FinanceStatus = finance
	r.EntityStatus = entity
	r.ApprovedAt = &now
	r.UpdatedAt = now
	return nil
}

// ApprovePT locks the request into the PT strategy against the given redeem
// request. Balance eligibility is validated by the resolver.
func (r *RechargeRequest) ApprovePT(redeemID string) error {
	if r.TagType != TagUnset {
		return &TransitionError{Dimension: "tag_type", From: string(r.TagType), To: string(TagPT)}
	}

	finance, err := moveFinance(r.FinanceStatus, FinanceApproved)
	if err != nil {
		return err
	}
	entity, err := moveEntity(r.EntityStatus, EntityPaymentPending)
	if err != nil {
		return err
	}
	verification, err := moveVerification(r.VerificationStatus, VerificationPending)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	r.TagType = TagPT
	r.MatchedRedeemID = redeemID
	r.FinanceStatus = finance
	r.EntityStatus = entity
	r.VerificationStatus = verification
	r.ApprovedAt = &now
	r.UpdatedAt = now
	return nil
}

// RejectFinance terminally rejects a still-pending request. An approved
// request can no longer be rejected here, only through the verification
// paths.
func (r *RechargeRequest) RejectFinance(reason string) error {
	if r.FinanceStatus != FinancePending {
		return preconditionError("finance_status", string(r.FinanceStatus))
	}

	finance, err := moveFinance(r.FinanceStatus, FinanceRejected)
	if err != nil {
		return err
	}
	entity, err := moveEntity(r.EntityStatus, EntityRejected)
	if err != nil {
		return err
	}
	ops, err := moveOperations(r.OperationsStatus, OpsCancelled)
	if err != nil {
		return err
	}

	r.FinanceStatus = finance
	r.EntityStatus = entity
	r.OperationsStatus = ops
	r.Remarks = reason
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// SubmitProof records the proof-of-payment reference. Submission is one-shot.
func (r *RechargeRequest) SubmitProof(proofRef, via string) error {
	if proofRef == "" {
		return ErrProofRequired
	}
	if err := require(financeTransitions, "finance_status", r.FinanceStatus, FinanceApproved); err != nil {
		return err
	}

	entity, err := moveEntity(r.EntityStatus, EntityPaymentSubmitted)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	r.EntityStatus = entity
	r.ProofRef = proofRef
	r.ProofVia = via
	r.ProofSubmittedAt = &now
	r.UpdatedAt = now
	return nil
}

// VerifyCT is the finance role confirming a CT payment; no separate
// verification role is consulted.
func (r *RechargeRequest) VerifyCT() error {
	if err := r.requireTag(TagCT); err != nil {
		return err
	}
	if err := require(financeTransitions, "finance_status", r.FinanceStatus, FinanceApproved); err != nil {
		return err
	}
	if err := require(entityTransitions, "entity_status", r.EntityStatus, EntityPaymentSubmitted); err != nil {
		return err
	}

	ops, err := moveOperations(r.OperationsStatus, OpsWaitingOperations)
	if err != nil {
		return err
	}

	r.OperationsStatus = ops
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ApproveVerificationPT is the independent verification role approving a PT
// payment. The proof screenshot is mandatory.
func (r *RechargeRequest) ApproveVerificationPT() error {
	if err := r.requireTag(TagPT); err != nil {
		return err
	}
	if r.ProofRef == "" {
		return ErrProofRequired
	}
	if err := require(entityTransitions, "entity_status", r.EntityStatus, EntityPaymentSubmitted); err != nil {
		return err
	}

	verification, err := moveVerification(r.VerificationStatus, VerificationApproved)
	if err != nil {
		return err
	}
	ops, err := moveOperations(r.OperationsStatus, OpsWaitingOperations)
	if err != nil {
		return err
	}

	r.VerificationStatus = verification
	r.OperationsStatus = ops
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// RejectVerificationPT rejects a PT payment at verification, cascading the
// rejection to the finance and entity dimensions.
func (r *RechargeRequest) RejectVerificationPT(reason string) error {
	if err := r.requireTag(TagPT); err != nil {
		return err
	}

	verification, err := moveVerification(r.VerificationStatus, VerificationRejected)
	if err != nil {
		return err
	}
	finance, err := moveFinance(r.FinanceStatus, FinanceRejected)
	if err != nil {
		return err
	}
	entity, err := moveEntity(r.EntityStatus, EntityRejected)
	if err != nil {
		return err
	}
	ops, err := moveOperations(r.OperationsStatus, OpsCancelled)
	if err != nil {
		return err
	}

	r.VerificationStatus = verification
	r.FinanceStatus = finance
	r.EntityStatus = entity
	r.OperationsStatus = ops
	r.Remarks = reason
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// RejectVerificationCT is finance rejecting a submitted CT payment.
// Finance already approved the request, so only the entity and operations
// dimensions move.
func (r *RechargeRequest) RejectVerificationCT(reason string) error {
	if err := r.requireTag(TagCT); err != nil {
		return err
	}
	if err := require(financeTransitions, "finance_status", r.FinanceStatus, FinanceApproved); err != nil {
		return err
	}

	entity, err := moveEntity(r.EntityStatus, EntityRejected)
	if err != nil {
		return err
	}
	ops, err := moveOperations(r.OperationsStatus, OpsCancelled)
	if err != nil {
		return err
	}

	r.EntityStatus = entity
	r.OperationsStatus = ops
	r.Remarks = reason
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// StartProcessing moves the request into active fulfillment
func (r *RechargeRequest) StartProcessing() error {
	ops, err := moveOperations(r.OperationsStatus, OpsProcessing)
	if err != nil {
		return err
	}

	r.OperationsStatus = ops
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete records a successfully routed funds transfer across all
// dimensions.
func (r *RechargeRequest) Complete() error {
	ops, err := moveOperations(r.OperationsStatus, OpsCompleted)
	if err != nil {
		return err
	}
	entity, err := moveEntity(r.EntityStatus, EntityCompleted)
	if err != nil {
		return err
	}
	finance, err := moveFinance(r.FinanceStatus, FinanceCompleted)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	r.OperationsStatus = ops
	r.EntityStatus = entity
	r.FinanceStatus = finance
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// RejectOperations rejects the request during fulfillment
func (r *RechargeRequest) RejectOperations(reason string) error {
	ops, err := moveOperations(r.OperationsStatus, OpsRejected)
	if err != nil {
		return err
	}
	entity, err := moveEntity(r.EntityStatus, EntityRejected)
	if err != nil {
		return err
	}

	r.OperationsStatus = ops
	r.EntityStatus = entity
	r.Remarks = reason
	r.UpdatedAt = time.Now().UTC()
	return nil
}
