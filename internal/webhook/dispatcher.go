package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType nomeia os eventos de ciclo de vida publicáveis.
type EventType string

const (
	EventPreEnrollmentCreated EventType = "pre_enrollment_created"
	EventPaymentConfirmed     EventType = "payment_confirmed"
	EventOrganApproved        EventType = "organ_approved"
	EventOrganRejected        EventType = "organ_rejected"
	EventEnrollmentCreated    EventType = "enrollment_created"
	EventEnrollmentActive     EventType = "enrollment_active"
	EventCertificateIssued    EventType = "certificate_issued"
	EventStatusRejected       EventType = "status_rejected"
)

// Event é o payload enviado ao endpoint de automação configurado.
type Event struct {
	Type            EventType  `json:"event_type"`
	PreEnrollmentID uuid.UUID  `json:"pre_enrollment_id"`
	PreviousStatus  *string    `json:"previous_status,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
	EnrollmentID    *uuid.UUID `json:"enrollment_id,omitempty"`
}

// ConfigSource fornece URL e lista de eventos assinados; ambos vêm das
// configurações administradas pelo back-office.
type ConfigSource interface {
	WebhookConfig(ctx context.Context) (url string, subscribed []EventType, err error)
}

// Dispatcher envia eventos em melhor esforço: falhas são logadas e
// nunca propagadas — a entrega de notificação não pode abortar uma
// transação de negócio.
type Dispatcher struct {
	source ConfigSource
	client *http.Client
	logger zerolog.Logger
}

func NewDispatcher(source ConfigSource, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		source: source,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Trigger publica o evento se houver URL configurada e o tipo estiver
// na lista assinada. Nunca devolve erro ao chamador.
func (d *Dispatcher) Trigger(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := d.send(ctx, event); err != nil {
		d.logger.Warn().Err(err).
			Str("event", string(event.Type)).
			Str("pre_enrollment_id", event.PreEnrollmentID.String()).
			Msg("falha ao despachar webhook")
	}
}

func (d *Dispatcher) send(ctx context.Context, event Event) error {
	url, subscribed, err := d.source.WebhookConfig(ctx)
	if err != nil {
		return err
	}
	if url == "" {
		return nil
	}
	if !contains(subscribed, event.Type) {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.New("webhook respondeu " + resp.Status)
	}
	return nil
}

func contains(list []EventType, t EventType) bool {
	for _, item := range list {
		if item == t {
			return true
		}
	}
	return false
}
