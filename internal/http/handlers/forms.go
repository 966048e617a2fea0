package handlers

import (
	"net/http"

	"github.com/wolfman30/healsmart/internal/appointments"
	"github.com/wolfman30/healsmart/internal/forms"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// FormsHandler accepts the footer query/contact forms and appointment
// bookings.
type FormsHandler struct {
	pipeline     *forms.Pipeline
	appointments *appointments.Service
	logger       *logging.Logger
}

func NewFormsHandler(pipeline *forms.Pipeline, appts *appointments.Service, logger *logging.Logger) *FormsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FormsHandler{pipeline: pipeline, appointments: appts, logger: logger}
}

type submitResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SubmitQuery handles POST /api/forms/query.
func (h *FormsHandler) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, forms.KindQuery, "Your query has been submitted successfully!")
}

// SubmitContact handles POST /api/forms/contact.
func (h *FormsHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, forms.KindContact, "Your message has been sent successfully!")
}

func (h *FormsHandler) submit(w http.ResponseWriter, r *http.Request, kind forms.Kind, ack string) {
	values := map[string]string{}
	if err := decodeJSON(w, r, &values); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := h.pipeline.Submit(r.Context(), &forms.Form{Kind: kind, Values: values})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: id, Message: ack})
}

// BookAppointment handles POST /api/appointments.
func (h *FormsHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointments.Request
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	conf, err := h.appointments.Book(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

// ListDoctors handles GET /api/doctors.
func (h *FormsHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"doctors": appointments.Doctors()})
}
