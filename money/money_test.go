package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-commerce/money"
)

func TestMoney_Arithmetic(t *testing.T) {
	a := money.MustParse("100.10")
	b := money.MustParse("0.20")

	assert.Equal(t, "100.3", a.Add(b).String())
	assert.Equal(t, "99.9", a.Sub(b).String())
	assert.Equal(t, "-100.1", a.Neg().String())
}

func TestMoney_SummationIsExact(t *testing.T) {
	// 0.1 summed ten times is exactly 1, not 0.9999999999999999.
	sum := money.Zero()
	tenth := money.MustParse("0.1")
	for i := 0; i < 10; i++ {
		sum = sum.Add(tenth)
	}
	assert.True(t, sum.Equal(money.FromInt(1)))
}

func TestMoney_Parse(t *testing.T) {
	m, err := money.Parse("149.90")
	require.NoError(t, err)
	assert.Equal(t, "149.9", m.String())

	_, err = money.Parse("not-a-number")
	assert.Error(t, err)

	// MustParse degrades to zero instead of panicking.
	assert.True(t, money.MustParse("garbage").IsZero())
}

func TestMoney_Comparisons(t *testing.T) {
	small := money.FromInt(5)
	big := money.FromInt(7)

	assert.True(t, small.LessThan(big))
	assert.True(t, big.GreaterThan(small))
	assert.False(t, small.Equal(big))
	assert.True(t, small.IsPositive())
	assert.True(t, small.Neg().IsNegative())
	assert.True(t, money.Zero().IsZero())
}
