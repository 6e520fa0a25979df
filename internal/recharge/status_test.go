package recharge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"paydesk/internal/recharge"
)

func TestEntityStatusTransitions(t *testing.T) {
	legal := []struct {
		from, to recharge.EntityStatus
	}{
		{recharge.EntityPending, recharge.EntityPaymentPending},
		{recharge.EntityPending, recharge.EntityRejected},
		{recharge.EntityPaymentPending, recharge.EntityPaymentSubmitted},
		{recharge.EntityPaymentPending, recharge.EntityRejected},
		{recharge.EntityPaymentSubmitted, recharge.EntityCompleted},
		{recharge.EntityPaymentSubmitted, recharge.EntityRejected},
	}
	for _, tc := range legal {
		assert.True(t, recharge.IsLegalEntityMove(tc.from, tc.to),
			"expected %s -> %s to be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to recharge.EntityStatus
	}{
		{recharge.EntityPending, recharge.EntityCompleted},
		{recharge.EntityPending, recharge.EntityPaymentSubmitted},
		{recharge.EntityCompleted, recharge.EntityPending},
		{recharge.EntityRejected, recharge.EntityPaymentPending},
		{recharge.EntityPaymentSubmitted, recharge.EntityPaymentPending},
	}
	for _, tc := range illegal {
		assert.False(t, recharge.IsLegalEntityMove(tc.from, tc.to),
			"expected %s -> %s to be illegal", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	assert.Empty(t, recharge.AllowedEntityNext(recharge.EntityCompleted))
	assert.Empty(t, recharge.AllowedEntityNext(recharge.EntityRejected))
	assert.Empty(t, recharge.AllowedFinanceNext(recharge.FinanceCompleted))
	assert.Empty(t, recharge.AllowedFinanceNext(recharge.FinanceRejected))
	assert.Empty(t, recharge.AllowedVerificationNext(recharge.VerificationApproved))
	assert.Empty(t, recharge.AllowedVerificationNext(recharge.VerificationRejected))
	assert.Empty(t, recharge.AllowedOperationsNext(recharge.OpsCompleted))
	assert.Empty(t, recharge.AllowedOperationsNext(recharge.OpsRejected))
	assert.Empty(t, recharge.AllowedOperationsNext(recharge.OpsCancelled))
}

func TestOperationsStatusTransitions(t *testing.T) {
	assert.True(t, recharge.IsLegalOperationsMove(recharge.OpsWaitingOperations, recharge.OpsProcessing))
	assert.True(t, recharge.IsLegalOperationsMove(recharge.OpsWaitingOperations, recharge.OpsCompleted))
	assert.True(t, recharge.IsLegalOperationsMove(recharge.OpsProcessing, recharge.OpsCompleted))
	assert.True(t, recharge.IsLegalOperationsMove(recharge.OpsProcessing, recharge.OpsRejected))

	assert.False(t, recharge.IsLegalOperationsMove(recharge.OpsPending, recharge.OpsCompleted))
	assert.False(t, recharge.IsLegalOperationsMove(recharge.OpsCompleted, recharge.OpsProcessing))
	assert.False(t, recharge.IsLegalOperationsMove(recharge.OpsCancelled, recharge.OpsPending))
}
