package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRejected(t *testing.T) {
	r := Rejected("SUMMER", "", "")
	assert.False(t, r.Valid)
	assert.Equal(t, ReasonUnknown, r.Reason)
	assert.True(t, r.Discount.IsZero())

	r = Rejected("SUMMER", ReasonExpired, "ended last week")
	assert.Equal(t, ReasonExpired, r.Reason)
}

func TestResult_Clamp(t *testing.T) {
	r := &Result{Valid: true, Discount: decimal.NewFromInt(50)}
	r.Clamp(decimal.NewFromInt(30))
	assert.True(t, decimal.NewFromInt(30).Equal(r.Discount))

	r = &Result{Valid: true, Discount: decimal.NewFromInt(-5)}
	r.Clamp(decimal.NewFromInt(30))
	assert.True(t, r.Discount.IsZero())
}
