package recharge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"paydesk/internal/account"
	"paydesk/internal/common/events"
	"paydesk/internal/common/middleware"
	"paydesk/internal/common/money"
	"paydesk/internal/redeem"
)

// Store persists recharge requests. Update is a compare-and-set keyed on the
// snapshot the caller loaded: a losing concurrent writer gets
// ErrPreconditionFailed, never a silently overwritten status.
type Store interface {
	Create(ctx context.Context, req *RechargeRequest) error
	Get(ctx context.Context, id string) (*RechargeRequest, error)

	// Update persists req only if the stored row still matches expected.
	Update(ctx context.Context, req *RechargeRequest, expected StatusSnapshot) error

	ListByEntity(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error)

	// ListFinanceQueue returns requests awaiting a finance decision
	ListFinanceQueue(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error)

	// ListVerificationQueue returns PT requests with submitted proof awaiting
	// the verification role.
	ListVerificationQueue(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error)

	// ListOperationsQueue returns verified requests awaiting fulfillment
	ListOperationsQueue(ctx context.Context, entityID string, limit int) ([]*RechargeRequest, error)
}

const queueLimit = 100

// Service coordinates the recharge lifecycle across the request store, the
// company account registry and the redeem ledger.
type Service struct {
	store     Store
	resolver  *TagResolver
	redeems   *redeem.Service
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a new recharge service
func NewService(store Store, accounts account.Store, redeems *redeem.Service, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		resolver:  NewTagResolver(accounts, redeems),
		redeems:   redeems,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateRequest is the request to open a recharge request
type CreateRequest struct {
	EntityID         string      `json:"entity_id" validate:"required"`
	PlayerID         string      `json:"player_id" validate:"required"`
	PaymentMethodID  string      `json:"payment_method_id" validate:"required"`
	Amount           money.Money `json:"amount" validate:"required"`
	BonusBasisPoints int64       `json:"bonus_basis_points" validate:"gte=0"`
	Remarks          string      `json:"remarks"`
}

// Create opens a new recharge request in the finance queue
func (s *Service) Create(ctx context.Context, req CreateRequest) (*RechargeRequest, error) {
	id := ulid.Make().String()

	recharge, err := NewRechargeRequest(id, req.EntityID, req.PlayerID, req.PaymentMethodID, req.Amount, req.BonusBasisPoints)
	if err != nil {
		return nil, fmt.Errorf("creating recharge request: %w", err)
	}
	recharge.Remarks = req.Remarks

	if err := s.store.Create(ctx, recharge); err != nil {
		return nil, fmt.Errorf("storing recharge request: %w", err)
	}

	s.publish(ctx, events.EventRechargeCreated, recharge, "")

	s.logger.Info("recharge request created",
		"request_id", recharge.ID,
		"entity_id", recharge.EntityID,
		"player_id", recharge.PlayerID,
		"amount", recharge.Amount.AmountMinor,
		"currency", recharge.Amount.Currency,
	)

	return recharge, nil
}

// Get retrieves a recharge request
func (s *Service) Get(ctx context.Context, id string) (*RechargeRequest, error) {
	return s.store.Get(ctx, id)
}

// ListByEntity returns the entity's recent recharge requests
func (s *Service) ListByEntity(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	return s.store.ListByEntity(ctx, entityID, queueLimit)
}

// FinanceQueue returns requests awaiting a finance decision
func (s *Service) FinanceQueue(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	return s.store.ListFinanceQueue(ctx, entityID, queueLimit)
}

// VerificationQueue returns PT requests awaiting verification
func (s *Service) VerificationQueue(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	return s.store.ListVerificationQueue(ctx, entityID, queueLimit)
}

// OperationsQueue returns requests awaiting fulfillment
func (s *Service) OperationsQueue(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	return s.store.ListOperationsQueue(ctx, entityID, queueLimit)
}

// ApproveAndAssignCT approves the request and routes it through a company
// account. The tag is assigned exactly once; a concurrent competing approval
// loses with ErrPreconditionFailed.
func (s *Service) ApproveAndAssignCT(ctx context.Context, id, accountID string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if _, err := s.resolver.ResolveCT(ctx, req, accountID); err != nil {
		return nil, err
	}

	if err := req.ApproveCT(accountID); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRechargeApproved, req, "")
	s.logger.Info("recharge approved",
		"request_id", req.ID,
		"tag_type", req.TagType,
		"account_id", accountID,
	)
	return req, nil
}

// ApproveAndAssignPT approves the request and matches it to a redeem
// request, placing a hold on the redeem balance for the recharge amount.
func (s *Service) ApproveAndAssignPT(ctx context.Context, id, redeemID string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if _, err := s.resolver.ResolvePT(ctx, req, redeemID); err != nil {
		return nil, err
	}

	if err := req.ApprovePT(redeemID); err != nil {
		return nil, err
	}

	// The hold is placed before the request update so that a guard failure
	// on the redeem side aborts the approval. If the request update then
	// loses a concurrent race, the hold is released again.
	if _, err := s.redeems.PlaceHold(ctx, redeemID, req.Amount); err != nil {
		return nil, fmt.Errorf("placing hold on redeem %s: %w", redeemID, err)
	}

	if err := s.store.Update(ctx, req, expected); err != nil {
		if _, relErr := s.redeems.ReleaseHold(ctx, redeemID, req.Amount); relErr != nil {
			s.logger.Error("releasing hold after lost approval race",
				"request_id", req.ID,
				"redeem_id", redeemID,
				"error", relErr,
			)
		}
		return nil, err
	}

	s.publish(ctx, events.EventRechargeApproved, req, "")
	s.logger.Info("recharge approved",
		"request_id", req.ID,
		"tag_type", req.TagType,
		"redeem_id", redeemID,
	)
	return req, nil
}

// RejectAtFinance terminally rejects a pending request
func (s *Service) RejectAtFinance(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.RejectFinance(reason); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRechargeRejected, req, reason)
	s.logger.Info("recharge rejected at finance", "request_id", req.ID, "reason", reason)
	return req, nil
}

// SubmitPaymentProof records the proof-of-payment reference for an approved
// request. Retrying with the same reference after a success is a no-op.
func (s *Service) SubmitPaymentProof(ctx context.Context, id, proofRef, via string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.EntityStatus == EntityPaymentSubmitted && req.ProofRef == proofRef {
		return req, nil
	}

	expected := req.Snapshot()
	if err := req.SubmitProof(proofRef, via); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRechargeProofSubmitted, req, "")
	s.logger.Info("payment proof submitted", "request_id", req.ID, "via", via)
	return req, nil
}

// FinanceVerifyCT confirms receipt of a CT payment and hands the request to
// operations.
func (s *Service) FinanceVerifyCT(ctx context.Context, id string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.VerifyCT(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRechargeVerified, req, "")
	s.logger.Info("recharge verified", "request_id", req.ID, "tag_type", req.TagType)
	return req, nil
}

// VerificationApprovePT approves a PT payment and hands the request to
// operations. The proof screenshot must be present.
func (s *Service) VerificationApprovePT(ctx context.Context, id string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.ApproveVerificationPT(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRechargeVerified, req, "")
	s.logger.Info("recharge verified", "request_id", req.ID, "tag_type", req.TagType)
	return req, nil
}

// VerificationRejectPT rejects a PT payment and releases the hold on the
// matched redeem request.
func (s *Service) VerificationRejectPT(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.RejectVerificationPT(reason); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.releaseMatchedHold(ctx, req)

	s.publish(ctx, events.EventRechargeVerifyRejected, req, reason)
	s.logger.Info("recharge rejected at verification", "request_id", req.ID, "reason", reason)
	return req, nil
}

// FinanceRejectVerificationCT rejects a submitted CT payment
func (s *Service) FinanceRejectVerificationCT(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.RejectVerificationCT(reason); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRechargeVerifyRejected, req, reason)
	s.logger.Info("recharge rejected at verification", "request_id", req.ID, "reason", reason)
	return req, nil
}

// StartProcessing claims a request for active fulfillment. Only one
// operations operator can win the claim.
func (s *Service) StartProcessing(ctx context.Context, id string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.StartProcessing(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.logger.Info("recharge processing started", "request_id", req.ID)
	return req, nil
}

// OperationsComplete records the funds transfer. For PT requests the held
// amount is settled against the matched redeem request, moving it from
// remaining to paid.
func (s *Service) OperationsComplete(ctx context.Context, id string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.OperationsStatus == OpsCompleted {
		return req, nil
	}

	expected := req.Snapshot()
	if err := req.Complete(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	if req.TagType == TagPT && req.MatchedRedeemID != "" {
		if _, err := s.redeems.SettleHeldPayment(ctx, req.MatchedRedeemID, req.Amount); err != nil {
			// The recharge itself completed; the settlement is surfaced
			// for reconciliation rather than rolled back.
			s.logger.Error("settling held redeem payment",
				"request_id", req.ID,
				"redeem_id", req.MatchedRedeemID,
				"error", err,
			)
		}
	}

	s.publish(ctx, events.EventRechargeCompleted, req, "")
	s.logger.Info("recharge completed",
		"request_id", req.ID,
		"tag_type", req.TagType,
		"final_amount", req.FinalAmount.AmountMinor,
	)
	return req, nil
}

// OperationsReject rejects a request during fulfillment, releasing any hold
// on the matched redeem request.
func (s *Service) OperationsReject(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := req.Snapshot()

	if err := req.RejectOperations(reason); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, req, expected); err != nil {
		return nil, err
	}

	s.releaseMatchedHold(ctx, req)

	s.publish(ctx, events.EventRechargeOpsRejected, req, reason)
	s.logger.Info("recharge rejected at operations", "request_id", req.ID, "reason", reason)
	return req, nil
}

func (s *Service) releaseMatchedHold(ctx context.Context, req *RechargeRequest) {
	if req.TagType != TagPT || req.MatchedRedeemID == "" {
		return
	}
	if _, err := s.redeems.ReleaseHold(ctx, req.MatchedRedeemID, req.Amount); err != nil {
		if errors.Is(err, redeem.ErrInsufficientBalance) {
			// Hold already released by an earlier attempt
			return
		}
		s.logger.Error("releasing redeem hold",
			"request_id", req.ID,
			"redeem_id", req.MatchedRedeemID,
			"error", err,
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, req *RechargeRequest, reason string) {
	data := events.RechargeStatusData{
		RequestID:          req.ID,
		EntityID:           req.EntityID,
		PlayerID:           req.PlayerID,
		TagType:            string(req.TagType),
		EntityStatus:       string(req.EntityStatus),
		FinanceStatus:      string(req.FinanceStatus),
		VerificationStatus: string(req.VerificationStatus),
		OperationsStatus:   string(req.OperationsStatus),
		AmountMinor:        req.Amount.AmountMinor,
		Currency:           string(req.Amount.Currency),
		Reason:             reason,
	}
	if actor, ok := middleware.GetActor(ctx); ok {
		data.ActorID = actor.ID
	}

	event, err := events.NewEvent(eventType, "recharge_request", req.ID, data)
	if err != nil {
		s.logger.Error("building event", "type", eventType, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing event", "type", eventType, "error", err)
	}
}
