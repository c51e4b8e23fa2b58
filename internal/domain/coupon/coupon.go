package coupon

import (
	"github.com/erp/pos/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RejectReason is a machine-readable reason a coupon does not apply
type RejectReason string

const (
	ReasonNotFound      RejectReason = "NOT_FOUND"
	ReasonExpired       RejectReason = "EXPIRED"
	ReasonNotStarted    RejectReason = "NOT_STARTED"
	ReasonMinSubtotal   RejectReason = "MIN_SUBTOTAL"
	ReasonNotApplicable RejectReason = "NOT_APPLICABLE"
	ReasonUsageLimit    RejectReason = "USAGE_LIMIT"
	ReasonInactive      RejectReason = "INACTIVE"
	ReasonUnknown       RejectReason = "UNKNOWN"
)

// Request describes the order a coupon is checked against
type Request struct {
	Code        string          `json:"code" validate:"required,max=64"`
	BranchID    uuid.UUID       `json:"branch_id" validate:"required"`
	OrderType   order.Type      `json:"order_type" validate:"required"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CustomerRef string          `json:"customer_ref,omitempty"`
}

// Result is the server's verdict. A rejected coupon carries Reason.
type Result struct {
	Code     string
	Valid    bool
	Discount decimal.Decimal
	Reason   RejectReason
	Message  string
}

// Rejected builds a negative result
func Rejected(code string, reason RejectReason, message string) *Result {
	if reason == "" {
		reason = ReasonUnknown
	}
	return &Result{Code: code, Valid: false, Discount: decimal.Zero, Reason: reason, Message: message}
}

// Clamp caps the discount at the subtotal so totals never go negative
func (r *Result) Clamp(subtotal decimal.Decimal) {
	if r.Discount.GreaterThan(subtotal) {
		r.Discount = subtotal
	}
	if r.Discount.IsNegative() {
		r.Discount = decimal.Zero
	}
}
