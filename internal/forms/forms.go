// Package forms validates visitor form submissions and appends them to the
// document store.
package forms

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("healsmart.internal.forms")

// ErrUnknownKind is returned for a form kind with no definition.
var ErrUnknownKind = errors.New("forms: unknown form kind")

// Kind names a form and selects its definition.
type Kind string

const (
	KindQuery       Kind = "query"
	KindContact     Kind = "contact"
	KindAppointment Kind = "appointment"
)

type definition struct {
	collection string
	status     string
	required   []string
	emails     []string
}

var definitions = map[Kind]definition{
	KindQuery: {
		collection: "queries",
		status:     "pending",
		required:   []string{"query"},
	},
	KindContact: {
		collection: "contacts",
		status:     "unread",
		required:   []string{"name", "email", "message"},
		emails:     []string{"email"},
	},
	KindAppointment: {
		collection: "appointments",
		status:     "booked",
		required:   []string{"doctor", "name", "email", "date"},
		emails:     []string{"email"},
	},
}

// Collection returns where records of kind are stored.
func Collection(kind Kind) (string, bool) {
	def, ok := definitions[kind]
	return def.collection, ok
}

// Form is one submission. Values is cleared after a successful submit.
type Form struct {
	Kind   Kind
	Values map[string]string
}

// ValidationError lists required fields that were empty and fields whose
// value was malformed.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return "forms: " + strings.Join(parts, "; ")
}

// Pipeline validates and persists forms.
type Pipeline struct {
	store   docstore.Store
	metrics *metrics.StorefrontMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewPipeline(store docstore.Store, m *metrics.StorefrontMetrics, logger *logging.Logger) *Pipeline {
	if store == nil {
		panic("forms: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{store: store, metrics: m, logger: logger, now: time.Now}
}

// Submit validates form and appends exactly one record with a creation
// timestamp and the kind's initial status. It returns the new record id once
// the write is durable. On any error form.Values is left untouched.
func (p *Pipeline) Submit(ctx context.Context, form *Form) (string, error) {
	if form == nil {
		return "", fmt.Errorf("forms: nil form")
	}
	def, ok := definitions[form.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, form.Kind)
	}

	record, verr := validate(def, form.Values)
	if verr != nil {
		p.metrics.ObserveFormSubmission(string(form.Kind), "invalid")
		return "", verr
	}
	record["timestamp"] = p.now().UnixMilli()
	record["status"] = def.status

	ctx, span := tracer.Start(ctx, "forms.submit", trace.WithAttributes(
		attribute.String("forms.kind", string(form.Kind)),
	))
	defer span.End()

	id, err := p.store.Create(ctx, def.collection, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store write failed")
		p.metrics.ObserveFormSubmission(string(form.Kind), "error")
		p.logger.Error("forms: submit failed", "error", err, "kind", form.Kind)
		return "", fmt.Errorf("forms: submit %s: %w", form.Kind, err)
	}

	clear(form.Values)
	p.metrics.ObserveFormSubmission(string(form.Kind), "ok")
	p.logger.Info("form submitted", "kind", form.Kind, "id", id)
	return id, nil
}

func validate(def definition, values map[string]string) (map[string]any, *ValidationError) {
	record := make(map[string]any, len(def.required)+2)
	var verr ValidationError
	for _, field := range def.required {
		value := strings.TrimSpace(values[field])
		if value == "" {
			verr.Missing = append(verr.Missing, field)
			continue
		}
		record[field] = value
	}
	for _, field := range def.emails {
		value, ok := record[field].(string)
		if !ok {
			continue
		}
		if addr, err := mail.ParseAddress(value); err != nil || addr.Address != value {
			verr.Invalid = append(verr.Invalid, field)
		}
	}
	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return nil, &verr
	}
	return record, nil
}
