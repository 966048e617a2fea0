package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/healsmart/internal/cart"
	"github.com/wolfman30/healsmart/internal/identity"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// CartHandler serves the signed-in user's cart.
type CartHandler struct {
	sessions *cart.Sessions
	logger   *logging.Logger
}

func NewCartHandler(sessions *cart.Sessions, logger *logging.Logger) *CartHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CartHandler{sessions: sessions, logger: logger}
}

type cartResponse struct {
	Items   []cart.LineItem `json:"items"`
	Count   int             `json:"count"`
	Total   float64         `json:"total"`
	Message string          `json:"message,omitempty"`
}

func newCartResponse(c cart.Cart) cartResponse {
	resp := cartResponse{Items: c.Items, Count: cart.Count(c), Total: cart.Total(c)}
	if resp.Items == nil {
		resp.Items = []cart.LineItem{}
	}
	if len(resp.Items) == 0 {
		resp.Message = "Your cart is empty."
	}
	return resp
}

func (h *CartHandler) session(r *http.Request) *cart.Session {
	userID, _ := identity.UserIDFromContext(r.Context())
	return h.sessions.For(userID)
}

// GetCart handles GET /api/cart.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.session(r).Cart(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// AddItem handles POST /api/cart/items.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess.UserID() == "" {
		writeDomainError(w, h.logger, cart.ErrNotAuthenticated)
		return
	}
	var product cart.Product
	if err := decodeJSON(w, r, &product); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := sess.Add(r.Context(), product)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// RemoveItem handles DELETE /api/cart/items/{id}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.session(r).Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

type checkoutResponse struct {
	OrderID string  `json:"order_id"`
	Total   float64 `json:"total"`
	Message string  `json:"message"`
}

// Checkout handles POST /api/cart/checkout.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	order, err := h.session(r).Checkout(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID: order.ID,
		Total:   order.Total,
		Message: "Order placed successfully! Your order ID is: " + order.ID,
	})
}
