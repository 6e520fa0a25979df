package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/common/money"
)

func TestAdd_RejectsCurrencyMismatch(t *testing.T) {
	usd := money.New(100, money.USD)
	php := money.New(100, money.PHP)

	_, err := usd.Add(php)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)

	sum, err := usd.Add(money.New(50, money.USD))
	require.NoError(t, err)
	assert.Equal(t, int64(150), sum.AmountMinor)
}

func TestPercentage(t *testing.T) {
	amount := money.New(200_00, money.USD)

	assert.Equal(t, int64(10_00), amount.Percentage(500).AmountMinor)   // 5%
	assert.Equal(t, int64(40_00), amount.Percentage(2000).AmountMinor)  // 20%
	assert.Equal(t, int64(0), amount.Percentage(0).AmountMinor)
	assert.Equal(t, money.USD, amount.Percentage(500).Currency)
}

func TestComparisons(t *testing.T) {
	a := money.New(100, money.USD)
	b := money.New(50, money.USD)

	assert.True(t, a.GreaterThan(b))
	assert.True(t, a.GreaterOrEqual(a))
	assert.True(t, b.LessThan(a))
	assert.False(t, a.GreaterThan(money.New(100, money.PHP)))
}

func TestSum(t *testing.T) {
	total, err := money.Sum(
		money.New(10, money.USD),
		money.New(20, money.USD),
		money.New(30, money.USD),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(60), total.AmountMinor)

	_, err = money.Sum(money.New(10, money.USD), money.New(20, money.IDR))
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestScan(t *testing.T) {
	var m money.Money
	require.NoError(t, m.Scan([]byte(`{"amount_minor":250,"currency":"USD"}`)))
	assert.Equal(t, int64(250), m.AmountMinor)
	assert.Equal(t, money.USD, m.Currency)

	require.NoError(t, m.Scan(nil))
	assert.True(t, m.IsZero())

	// A bare numeric column carries no currency
	assert.Error(t, m.Scan(int64(250)))
}
