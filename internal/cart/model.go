// Package cart holds a signed-in user's shopping cart and turns it into
// orders at checkout.
package cart

import (
	"errors"
	"fmt"
	"strings"
)

const (
	cartsCollection  = "carts"
	ordersCollection = "orders"
)

var (
	// ErrNotAuthenticated is returned when a cart mutation has no user identity.
	ErrNotAuthenticated = errors.New("cart: please sign in to add items to cart")
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart: your cart is empty")
	// ErrInvalidProduct is returned for a product without id or with a negative price.
	ErrInvalidProduct = errors.New("cart: invalid product")
)

// LineItem is one product in a cart. A cart holds at most one line per ID.
type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Cart is a user's ordered list of line items.
type Cart struct {
	Items []LineItem `json:"items"`
}

// Validate rejects carts a persisted document could not have come from.
func (c Cart) Validate() error {
	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("%w: line item without id", ErrInvalidProduct)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: negative price for %s", ErrInvalidProduct, item.ID)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: quantity %d for %s", ErrInvalidProduct, item.Quantity, item.ID)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: duplicate line for %s", ErrInvalidProduct, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// Product is what an add-to-cart action carries.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Order is created once at checkout. Timestamp is unix milliseconds.
type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	Items           []LineItem    `json:"items"`
	Total           float64       `json:"total"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	DeliveryAddress string        `json:"deliveryAddress"`
	Timestamp       int64         `json:"timestamp"`
}

// PartialCheckoutError reports an order that was written while clearing the
// persisted cart failed. The order stands; the caller decides what to tell
// the user.
type PartialCheckoutError struct {
	OrderID string
	Err     error
}

func (e *PartialCheckoutError) Error() string {
	return fmt.Sprintf("cart: order %s created but cart was not cleared: %v", e.OrderID, e.Err)
}

func (e *PartialCheckoutError) Unwrap() error { return e.Err }
