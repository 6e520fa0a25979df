package redeem_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/common/events"
	"paydesk/internal/common/money"
	"paydesk/internal/redeem"
)

func newTestService(t *testing.T) *redeem.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return redeem.NewService(redeem.NewMemoryStore(), events.NopPublisher(), logger)
}

func usd(minor int64) money.Money {
	return money.New(minor, money.USD)
}

func open(t *testing.T, svc *redeem.Service, amount money.Money) *redeem.RedeemRequest {
	t.Helper()
	rd, err := svc.Create(context.Background(), redeem.CreateRequest{
		EntityID: "entity-1",
		PlayerID: "player-1",
		Amount:   amount,
	})
	require.NoError(t, err)
	return rd
}

func TestRecordPayment_BalanceInvariantHolds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rd := open(t, svc, usd(100_00))
	require.NoError(t, rd.CheckInvariant())

	rd, err := svc.RecordPayment(ctx, rd.ID, usd(30_00))
	require.NoError(t, err)
	assert.Equal(t, usd(30_00), rd.PaidAmount)
	assert.Equal(t, usd(70_00), rd.RemainingAmount)
	assert.NoError(t, rd.CheckInvariant())

	rd, err = svc.RecordPayment(ctx, rd.ID, usd(70_00))
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), rd.PaidAmount)
	assert.True(t, rd.RemainingAmount.IsZero())
	assert.Equal(t, redeem.StatusCompleted, rd.Status)
	assert.NotNil(t, rd.CompletedAt)
	assert.NoError(t, rd.CheckInvariant())
}

func TestRecordPayment_OverspendFailsWithoutMutation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rd := open(t, svc, usd(100_00))

	_, err := svc.RecordPayment(ctx, rd.ID, usd(150_00))
	assert.ErrorIs(t, err, redeem.ErrInsufficientBalance)

	stored, err := svc.Get(ctx, rd.ID)
	require.NoError(t, err)
	assert.True(t, stored.PaidAmount.IsZero())
	assert.Equal(t, usd(100_00), stored.RemainingAmount)
}

func TestRecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(t)
	rd := open(t, svc, usd(100_00))

	_, err := svc.RecordPayment(context.Background(), rd.ID, usd(0))
	assert.ErrorIs(t, err, redeem.ErrInvalidAmount)
	_, err = svc.RecordPayment(context.Background(), rd.ID, usd(-10))
	assert.ErrorIs(t, err, redeem.ErrInvalidAmount)
}

func TestConcurrentPayments_NeverOverspend(t *testing.T) {
	// Two simultaneous 80 payments against a 100 balance: exactly one wins
	svc := newTestService(t)
	ctx := context.Background()
	rd := open(t, svc, usd(100_00))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RecordPayment(ctx, rd.ID, usd(80_00))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, redeem.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, winners)

	stored, err := svc.Get(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, usd(80_00), stored.PaidAmount)
	assert.Equal(t, usd(20_00), stored.RemainingAmount)
	assert.NoError(t, stored.CheckInvariant())
}

func TestHolds_ReserveAndRelease(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rd := open(t, svc, usd(100_00))

	rd, err := svc.PlaceHold(ctx, rd.ID, usd(60_00))
	require.NoError(t, err)
	assert.Equal(t, usd(60_00), rd.HoldAmount)
	assert.Equal(t, usd(40_00), rd.Available())

	// A direct payment may only spend the unheld portion
	_, err = svc.RecordPayment(ctx, rd.ID, usd(50_00))
	assert.ErrorIs(t, err, redeem.ErrInsufficientBalance)
	_, err = svc.RecordPayment(ctx, rd.ID, usd(40_00))
	require.NoError(t, err)

	// A second hold cannot exceed what remains
	_, err = svc.PlaceHold(ctx, rd.ID, usd(10_00))
	assert.ErrorIs(t, err, redeem.ErrInsufficientBalance)

	rd, err = svc.ReleaseHold(ctx, rd.ID, usd(60_00))
	require.NoError(t, err)
	assert.True(t, rd.HoldAmount.IsZero())
	assert.NoError(t, rd.CheckInvariant())
}

func TestSettleHeldPayment(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rd := open(t, svc, usd(100_00))

	_, err := svc.PlaceHold(ctx, rd.ID, usd(100_00))
	require.NoError(t, err)

	// Settling more than is held fails
	_, err = svc.SettleHeldPayment(ctx, rd.ID, usd(120_00))
	assert.ErrorIs(t, err, redeem.ErrInsufficientBalance)

	rd, err = svc.SettleHeldPayment(ctx, rd.ID, usd(100_00))
	require.NoError(t, err)
	assert.True(t, rd.HoldAmount.IsZero())
	assert.True(t, rd.RemainingAmount.IsZero())
	assert.Equal(t, redeem.StatusCompleted, rd.Status)
	assert.NoError(t, rd.CheckInvariant())
}

func TestListEligibleForAmount_OrderingAndFiltering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	small := open(t, svc, usd(40_00))
	big := open(t, svc, usd(200_00))
	mid := open(t, svc, usd(90_00))

	// A fully held request is not eligible even with a large remaining
	held := open(t, svc, usd(300_00))
	_, err := svc.PlaceHold(ctx, held.ID, usd(300_00))
	require.NoError(t, err)

	eligible, err := svc.ListEligibleForAmount(ctx, "entity-1", usd(50_00))
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, big.ID, eligible[0].ID)
	assert.Equal(t, mid.ID, eligible[1].ID)

	for _, rd := range eligible {
		assert.NotEqual(t, small.ID, rd.ID)
	}
}
