// Package coupon checks coupon codes with the server while an order is
// being taken.
package coupon

import (
	"context"
	"time"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/coupon"
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Remote validates coupons on the server
type Remote interface {
	ValidateCoupon(ctx context.Context, req coupon.Request) (*coupon.Result, error)
}

// ValidateRequest is a coupon check for the order being taken
type ValidateRequest struct {
	Code        string          `json:"code" validate:"required,max=64"`
	OrderType   string          `json:"order_type" validate:"required,oneof=DINE_IN TAKEAWAY DELIVERY PICKUP"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CustomerRef string          `json:"customer_ref" validate:"max=100"`
}

// Response represents a coupon verdict in API responses
type Response struct {
	Code     string          `json:"code"`
	Valid    bool            `json:"valid"`
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Service validates coupons. There is no offline answer: a coupon the
// terminal cannot check is not applied.
type Service struct {
	remote   Remote
	online   syncqueue.OnlineChecker
	branchID uuid.UUID
	timeout  time.Duration
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a new coupon service
func NewService(client Remote, online syncqueue.OnlineChecker, branchID uuid.UUID, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		remote:   client,
		online:   online,
		branchID: branchID,
		timeout:  timeout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Validate asks the server whether the coupon applies to the order
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*Response, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
	}
	if req.Subtotal.IsNegative() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Subtotal cannot be negative")
	}
	if !s.online.IsOnline() {
		return nil, shared.NewDomainError(shared.ErrOffline.Code, "Coupons can only be checked while online")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "coupon", "validate", "pos.coupon.code", req.Code)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.remote.ValidateCoupon(callCtx, coupon.Request{
		Code:        req.Code,
		BranchID:    s.branchID,
		OrderType:   order.Type(req.OrderType),
		Subtotal:    req.Subtotal,
		CustomerRef: req.CustomerRef,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Coupon check failed", zap.String("code", req.Code), zap.Error(err))
		return nil, err
	}
	res.Clamp(req.Subtotal)

	s.logger.Info("Coupon checked",
		zap.String("code", req.Code),
		zap.Bool("valid", res.Valid),
		zap.String("reason", string(res.Reason)),
	)
	return &Response{
		Code:     res.Code,
		Valid:    res.Valid,
		Discount: res.Discount,
		Reason:   string(res.Reason),
		Message:  res.Message,
	}, nil
}
