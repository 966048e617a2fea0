package handlers

import (
	"net/http"

	"github.com/wolfman30/healsmart/internal/dashboard"
	"github.com/wolfman30/healsmart/internal/identity"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type DashboardHandler struct {
	dashboard *dashboard.Service
	logger    *logging.Logger
}

func NewDashboardHandler(svc *dashboard.Service, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{dashboard: svc, logger: logger}
}

// UpdateUserData handles POST /api/user-data. The caller's user id is
// recorded with the fields when signed in.
func (h *DashboardHandler) UpdateUserData(w http.ResponseWriter, r *http.Request) {
	fields := map[string]any{}
	if err := decodeJSON(w, r, &fields); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if userID, ok := identity.UserIDFromContext(r.Context()); ok && len(fields) > 0 {
		fields["userId"] = userID
	}
	id, err := h.dashboard.UpdateUserData(r.Context(), fields)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
