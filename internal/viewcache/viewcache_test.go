package viewcache_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/viewcache"
)

func TestView_PredictCommit(t *testing.T) {
	v := viewcache.NewView("pending")

	v.Predict("approved")
	value, state := v.Get()
	assert.Equal(t, "approved", value)
	assert.Equal(t, viewcache.StatePending, state)

	v.Commit("approved")
	value, state = v.Get()
	assert.Equal(t, "approved", value)
	assert.Equal(t, viewcache.StateCommitted, state)
}

func TestView_RollbackRestoresCommitted(t *testing.T) {
	v := viewcache.NewView("pending")

	v.Predict("approved")
	v.Rollback()

	value, state := v.Get()
	assert.Equal(t, "pending", value)
	assert.Equal(t, viewcache.StateCommitted, state)
}

func TestDo_CommitsOnSuccess(t *testing.T) {
	v := viewcache.NewView(10)

	result, err := viewcache.Do(v, 15, func() (int, error) {
		// The predicted value is already visible while the operation runs
		value, state := v.Get()
		assert.Equal(t, 15, value)
		assert.Equal(t, viewcache.StatePending, state)
		return 14, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 14, result)

	value, state := v.Get()
	assert.Equal(t, 14, value)
	assert.Equal(t, viewcache.StateCommitted, state)
}

func TestDo_RollsBackOnError(t *testing.T) {
	v := viewcache.NewView(10)
	boom := errors.New("precondition failed")

	_, err := viewcache.Do(v, 15, func() (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	value, state := v.Get()
	assert.Equal(t, 10, value)
	assert.Equal(t, viewcache.StateCommitted, state)
}
