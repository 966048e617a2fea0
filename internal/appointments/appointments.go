// Package appointments books doctor appointments and notifies the patient.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/forms"
	"github.com/wolfman30/healsmart/internal/liveview"
	"github.com/wolfman30/healsmart/internal/notify"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// ErrUnknownDoctor is returned for a doctor key not in the directory.
var ErrUnknownDoctor = errors.New("appointments: unknown doctor")

var doctors = map[string]string{
	"Naresh": "Dr. Naresh Trehan",
	"Rakesh": "Dr. Rakesh Mahajan",
	"Balbir": "Dr. Balbir Singh",
	"Pankaj": "Dr. Pankaj Aneja",
}

// DoctorName resolves a directory key such as "Naresh".
func DoctorName(key string) (string, error) {
	name, ok := doctors[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDoctor, key)
	}
	return name, nil
}

// Doctor is one directory entry.
type Doctor struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Doctors lists the directory sorted by key.
func Doctors() []Doctor {
	out := make([]Doctor, 0, len(doctors))
	for key, name := range doctors {
		out = append(out, Doctor{Key: key, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Notifier queues an email without waiting for delivery.
type Notifier interface {
	Notify(ctx context.Context, email notify.TemplateEmail)
}

// EmailConfig names the provider-side service and template.
type EmailConfig struct {
	ServiceID  string
	TemplateID string
}

// Request is a booking as entered by the patient.
type Request struct {
	Doctor string `json:"doctor"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Date   string `json:"date"`
}

// Confirmation is returned once the appointment is stored.
type Confirmation struct {
	ID      string `json:"id"`
	Doctor  string `json:"doctor"`
	Message string `json:"message"`
}

type Service struct {
	forms    *forms.Pipeline
	notifier Notifier
	email    EmailConfig
	logger   *logging.Logger
}

func NewService(pipeline *forms.Pipeline, notifier Notifier, email EmailConfig, logger *logging.Logger) *Service {
	if pipeline == nil || notifier == nil {
		panic("appointments: pipeline and notifier are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{forms: pipeline, notifier: notifier, email: email, logger: logger}
}

// Book stores the appointment and then queues the confirmation email. The
// email is fire-and-forget: a provider failure never fails the booking.
func (s *Service) Book(ctx context.Context, req Request) (Confirmation, error) {
	doctor, err := DoctorName(req.Doctor)
	if err != nil {
		return Confirmation{}, err
	}

	form := &forms.Form{Kind: forms.KindAppointment, Values: map[string]string{
		"doctor": doctor,
		"name":   req.Name,
		"email":  req.Email,
		"date":   req.Date,
	}}
	id, err := s.forms.Submit(ctx, form)
	if err != nil {
		return Confirmation{}, err
	}

	s.notifier.Notify(ctx, notify.TemplateEmail{
		ServiceID:  s.email.ServiceID,
		TemplateID: s.email.TemplateID,
		To:         strings.TrimSpace(req.Email),
		ToName:     strings.TrimSpace(req.Name),
		Params: map[string]string{
			"user_name":        strings.TrimSpace(req.Name),
			"doctor_name":      doctor,
			"appointment_date": strings.TrimSpace(req.Date),
			"to_email":         strings.TrimSpace(req.Email),
		},
	})
	s.logger.Info("appointment booked", "id", id, "doctor", doctor)

	return Confirmation{
		ID:      id,
		Doctor:  doctor,
		Message: fmt.Sprintf("Your appointment with %s has been booked!", doctor),
	}, nil
}

// HistoryFeed lists past appointments, latest booking first.
func HistoryFeed() liveview.Feed {
	return liveview.Feed{
		Name:        "appointments",
		Query:       docstore.Query{Collection: "appointments", OrderBy: "timestamp", Direction: docstore.Descending},
		EmptyText:   "No past appointments found.",
		FailureText: "Error loading appointments. Please try again.",
		Format:      formatAppointment,
	}
}

func formatAppointment(doc docstore.Document) liveview.Item {
	str := func(key string) string {
		v, _ := doc.Data[key].(string)
		return v
	}
	text := fmt.Sprintf("%s | Name: %s | Email: %s | Date: %s", str("doctor"), str("name"), str("email"), str("date"))
	return liveview.Item{ID: doc.ID, Text: text, Kind: "appointment"}
}
