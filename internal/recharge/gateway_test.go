package recharge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/common/middleware"
	"paydesk/internal/recharge"
)

func asRole(role string) context.Context {
	return middleware.WithActor(context.Background(), middleware.Actor{
		ID:   "actor-1",
		Role: role,
	})
}

func TestGateways_RejectWrongRole(t *testing.T) {
	f := newFixture(t)
	support := recharge.NewSupportGateway(f.service)
	finance := recharge.NewFinanceGateway(f.service)
	verification := recharge.NewVerificationGateway(f.service)
	operations := recharge.NewOperationsGateway(f.service)

	createReq := recharge.CreateRequest{
		EntityID:        "entity-1",
		PlayerID:        "player-1",
		PaymentMethodID: "method-1",
		Amount:          usd(100_00),
	}

	_, err := support.Create(asRole(recharge.RoleFinance), createReq)
	assert.ErrorIs(t, err, recharge.ErrRoleNotAllowed)

	_, err = finance.Reject(asRole(recharge.RoleSupport), "r-1", "why")
	assert.ErrorIs(t, err, recharge.ErrRoleNotAllowed)

	_, err = verification.Approve(asRole(recharge.RoleOperations), "r-1")
	assert.ErrorIs(t, err, recharge.ErrRoleNotAllowed)

	_, err = operations.Complete(asRole(recharge.RoleVerification), "r-1")
	assert.ErrorIs(t, err, recharge.ErrRoleNotAllowed)

	// No actor on the context at all
	_, err = support.Create(context.Background(), createReq)
	assert.ErrorIs(t, err, recharge.ErrRoleNotAllowed)
}

func TestGateways_FullLifecycleThroughRoleFacades(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "acct-1", "method-1")

	support := recharge.NewSupportGateway(f.service)
	finance := recharge.NewFinanceGateway(f.service)
	operations := recharge.NewOperationsGateway(f.service)

	req, err := support.Create(asRole(recharge.RoleSupport), recharge.CreateRequest{
		EntityID:        "entity-1",
		PlayerID:        "player-1",
		PaymentMethodID: "method-1",
		Amount:          usd(100_00),
	})
	require.NoError(t, err)

	req, err = finance.Approve(asRole(recharge.RoleFinance), req.ID, recharge.TagChoice{
		Type:      recharge.TagCT,
		AccountID: "acct-1",
	})
	require.NoError(t, err)
	assert.Equal(t, recharge.TagCT, req.TagType)

	_, err = support.SubmitPaymentProof(asRole(recharge.RoleSupport), req.ID, "proof-1", "acct-1")
	require.NoError(t, err)

	_, err = finance.VerifyCT(asRole(recharge.RoleFinance), req.ID)
	require.NoError(t, err)

	queue, err := operations.Queue(asRole(recharge.RoleOperations), "entity-1")
	require.NoError(t, err)
	require.Len(t, queue, 1)

	req, err = operations.Complete(asRole(recharge.RoleOperations), req.ID)
	require.NoError(t, err)
	assert.Equal(t, recharge.PhaseCompleted, req.Phase())
}

func TestFinanceApprove_UnknownTagType(t *testing.T) {
	f := newFixture(t)
	finance := recharge.NewFinanceGateway(f.service)

	_, err := finance.Approve(asRole(recharge.RoleFinance), "r-1", recharge.TagChoice{Type: "XX"})
	assert.ErrorIs(t, err, recharge.ErrInvalidAccountSelection)
}
