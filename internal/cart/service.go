package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("healsmart.internal.cart")

// Service persists carts and places orders in the document store.
type Service struct {
	store   docstore.Store
	logger  *logging.Logger
	metrics *metrics.StorefrontMetrics
	now     func() time.Time
	newID   func() string
}

func NewService(store docstore.Store, m *metrics.StorefrontMetrics, logger *logging.Logger) *Service {
	if store == nil {
		panic("cart: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Persist overwrites the user's cart document. Last writer wins.
func (s *Service) Persist(ctx context.Context, c Cart, userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	if c.Items == nil {
		c.Items = []LineItem{}
	}
	data, err := docstore.Encode(c)
	if err != nil {
		return fmt.Errorf("cart: encode cart: %w", err)
	}
	if err := s.store.Set(ctx, cartsCollection, userID, data); err != nil {
		return fmt.Errorf("cart: persist: %w", err)
	}
	return nil
}

// Load reads the user's cart. A missing document is an empty cart.
func (s *Service) Load(ctx context.Context, userID string) (Cart, error) {
	if userID == "" {
		return Cart{}, ErrNotAuthenticated
	}
	doc, err := s.store.Get(ctx, cartsCollection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Cart{}, nil
	}
	if err != nil {
		return Cart{}, fmt.Errorf("cart: load: %w", err)
	}
	var c Cart
	if err := docstore.Decode(doc.Data, &c); err != nil {
		return Cart{}, fmt.Errorf("cart: load: %w", err)
	}
	return c, nil
}

// Checkout writes an order for c and then empties the persisted cart. If the
// order is written but the cart clear fails, a *PartialCheckoutError carrying
// the order id is returned alongside the order.
func (s *Service) Checkout(ctx context.Context, c Cart, userID string) (Order, error) {
	if userID == "" {
		return Order{}, ErrNotAuthenticated
	}
	if len(c.Items) == 0 {
		s.metrics.ObserveCheckout("empty")
		return Order{}, ErrEmptyCart
	}

	ctx, span := tracer.Start(ctx, "cart.checkout", trace.WithAttributes(
		attribute.Int("cart.lines", len(c.Items)),
	))
	defer span.End()

	order := Order{
		ID:            s.newID(),
		UserID:        userID,
		Items:         c.Items,
		Total:         Total(c),
		Status:        OrderPending,
		PaymentStatus: PaymentPending,
		Timestamp:     s.now().UnixMilli(),
	}
	data, err := docstore.Encode(order)
	if err != nil {
		return Order{}, fmt.Errorf("cart: encode order: %w", err)
	}
	if err := s.store.Set(ctx, ordersCollection, order.ID, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order write failed")
		s.metrics.ObserveCheckout("failed")
		s.logger.Error("cart: order write failed", "error", err, "user_id", userID)
		return Order{}, fmt.Errorf("cart: create order: %w", err)
	}
	span.SetAttributes(attribute.String("cart.order_id", order.ID))

	if err := s.Persist(ctx, Cart{}, userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cart clear failed")
		s.metrics.ObserveCheckout("partial")
		s.logger.Error("cart: order placed but cart not cleared", "error", err, "order_id", order.ID, "user_id", userID)
		return order, &PartialCheckoutError{OrderID: order.ID, Err: err}
	}

	s.metrics.ObserveCheckout("ok")
	s.logger.Info("order placed", "order_id", order.ID, "user_id", userID, "total", order.Total)
	return order, nil
}
