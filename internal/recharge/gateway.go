package recharge

import (
	"context"
	"fmt"

	"paydesk/internal/common/middleware"
)

// Roles recognized by the gateways. The actor's role arrives on the request
// context via middleware.ActorExtractor.
const (
	RoleSupport      = "support"
	RoleFinance      = "finance"
	RoleVerification = "verification"
	RoleOperations   = "operations"
)

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		return fmt.Errorf("%w: no actor on context", ErrRoleNotAllowed)
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q", ErrRoleNotAllowed, actor.Role)
}

// SupportGateway exposes the intake operations available to player support
type SupportGateway struct {
	svc *Service
}

func NewSupportGateway(svc *Service) *SupportGateway {
	return &SupportGateway{svc: svc}
}

func (g *SupportGateway) Create(ctx context.Context, req CreateRequest) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleSupport); err != nil {
		return nil, err
	}
	return g.svc.Create(ctx, req)
}

func (g *SupportGateway) SubmitPaymentProof(ctx context.Context, id, proofRef, via string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleSupport); err != nil {
		return nil, err
	}
	return g.svc.SubmitPaymentProof(ctx, id, proofRef, via)
}

// FinanceGateway exposes the approval and CT verification operations
type FinanceGateway struct {
	svc *Service
}

func NewFinanceGateway(svc *Service) *FinanceGateway {
	return &FinanceGateway{svc: svc}
}

func (g *FinanceGateway) Queue(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	if err := requireRole(ctx, RoleFinance); err != nil {
		return nil, err
	}
	return g.svc.FinanceQueue(ctx, entityID)
}

// Approve routes the request per the operator's tag choice. This is the
// single entry point for tag assignment.
func (g *FinanceGateway) Approve(ctx context.Context, id string, choice TagChoice) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleFinance); err != nil {
		return nil, err
	}
	switch choice.Type {
	case TagCT:
		return g.svc.ApproveAndAssignCT(ctx, id, choice.AccountID)
	case TagPT:
		return g.svc.ApproveAndAssignPT(ctx, id, choice.RedeemID)
	default:
		return nil, fmt.Errorf("%w: unknown tag type %q", ErrInvalidAccountSelection, choice.Type)
	}
}

func (g *FinanceGateway) Reject(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleFinance); err != nil {
		return nil, err
	}
	return g.svc.RejectAtFinance(ctx, id, reason)
}

func (g *FinanceGateway) VerifyCT(ctx context.Context, id string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleFinance); err != nil {
		return nil, err
	}
	return g.svc.FinanceVerifyCT(ctx, id)
}

func (g *FinanceGateway) RejectVerificationCT(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleFinance); err != nil {
		return nil, err
	}
	return g.svc.FinanceRejectVerificationCT(ctx, id, reason)
}

// VerificationGateway exposes the PT payment verification operations
type VerificationGateway struct {
	svc *Service
}

func NewVerificationGateway(svc *Service) *VerificationGateway {
	return &VerificationGateway{svc: svc}
}

func (g *VerificationGateway) Queue(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	if err := requireRole(ctx, RoleVerification); err != nil {
		return nil, err
	}
	return g.svc.VerificationQueue(ctx, entityID)
}

func (g *VerificationGateway) Approve(ctx context.Context, id string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleVerification); err != nil {
		return nil, err
	}
	return g.svc.VerificationApprovePT(ctx, id)
}

func (g *VerificationGateway) Reject(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleVerification); err != nil {
		return nil, err
	}
	return g.svc.VerificationRejectPT(ctx, id, reason)
}

// OperationsGateway exposes the fulfillment operations
type OperationsGateway struct {
	svc *Service
}

func NewOperationsGateway(svc *Service) *OperationsGateway {
	return &OperationsGateway{svc: svc}
}

func (g *OperationsGateway) Queue(ctx context.Context, entityID string) ([]*RechargeRequest, error) {
	if err := requireRole(ctx, RoleOperations); err != nil {
		return nil, err
	}
	return g.svc.OperationsQueue(ctx, entityID)
}

func (g *OperationsGateway) StartProcessing(ctx context.Context, id string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleOperations); err != nil {
		return nil, err
	}
	return g.svc.StartProcessing(ctx, id)
}

func (g *OperationsGateway) Complete(ctx context.Context, id string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleOperations); err != nil {
		return nil, err
	}
	return g.svc.OperationsComplete(ctx, id)
}

func (g *OperationsGateway) Reject(ctx context.Context, id, reason string) (*RechargeRequest, error) {
	if err := requireRole(ctx, RoleOperations); err != nil {
		return nil, err
	}
	return g.svc.OperationsReject(ctx, id, reason)
}
