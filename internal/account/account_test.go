package account_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/account"
	"paydesk/internal/common/database"
)

func TestAccountEligibility(t *testing.T) {
	acct, err := account.New("acct-1", "method-1", "PayDesk Holdings", "111-222")
	require.NoError(t, err)

	assert.True(t, acct.CanReceive())
	assert.True(t, acct.BelongsTo("method-1"))
	assert.False(t, acct.BelongsTo("method-2"))

	acct.Status = account.StatusInactive
	assert.False(t, acct.CanReceive())
}

func TestNew_RequiresAllFields(t *testing.T) {
	_, err := account.New("", "m", "h", "n")
	assert.Error(t, err)
	_, err = account.New("id", "", "h", "n")
	assert.Error(t, err)
	_, err = account.New("id", "m", "", "n")
	assert.Error(t, err)
	_, err = account.New("id", "m", "h", "")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := account.NewMemoryStore()
	ctx := context.Background()

	acct, err := account.New("acct-1", "method-1", "PayDesk Holdings", "111-222")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, acct))

	err = store.Create(ctx, acct)
	assert.ErrorIs(t, err, database.ErrAlreadyExists)

	got, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	_, err = store.Get(ctx, "acct-missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, store.SetStatus(ctx, "acct-1", account.StatusInactive))
	got, err = store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, account.StatusInactive, got.Status)

	listed, err := store.ListByMethod(ctx, "method-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
