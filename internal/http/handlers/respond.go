package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/healsmart/internal/appointments"
	"github.com/wolfman30/healsmart/internal/cart"
	"github.com/wolfman30/healsmart/internal/chat"
	"github.com/wolfman30/healsmart/internal/dashboard"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/forms"
	"github.com/wolfman30/healsmart/pkg/logging"
)

const maxBodyBytes = 64 << 10

const (
	msgSignIn     = "Please sign in to add items to cart"
	msgEmptyCart  = "Your cart is empty"
	msgStoreRetry = "Something went wrong saving your request. Please try again."
	msgInternal   = "Internal server error"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	OrderID string   `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeDomainError maps service errors to HTTP responses. Store failures get a
// generic retry message; details only go to the log.
func writeDomainError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var (
		verr    *forms.ValidationError
		partial *cart.PartialCheckoutError
		storeE  *docstore.StoreError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Please fill in all fields",
			Missing: verr.Missing,
			Invalid: verr.Invalid,
		})
	case errors.Is(err, cart.ErrEmptyCart):
		jsonError(w, msgEmptyCart, http.StatusBadRequest)
	case errors.Is(err, cart.ErrNotAuthenticated):
		jsonError(w, msgSignIn, http.StatusUnauthorized)
	case errors.As(err, &partial):
		logger.Error("partial checkout", "error", err, "order_id", partial.OrderID)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:   "Your order was placed but your cart could not be updated. Please refresh.",
			OrderID: partial.OrderID,
		})
	case errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, appointments.ErrUnknownDoctor),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, forms.ErrUnknownKind),
		errors.Is(err, dashboard.ErrEmptyUserData),
		errors.Is(err, docstore.ErrInvalid):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, chat.ErrClosed):
		jsonError(w, "Chat is unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &storeE):
		logger.Error("document store failure", "error", err, "op", storeE.Op, "collection", storeE.Collection)
		jsonError(w, msgStoreRetry, http.StatusBadGateway)
	default:
		logger.Error("request failed", "error", err)
		jsonError(w, msgInternal, http.StatusInternalServerError)
	}
}
