package enrollment

import "fmt"

// Event nomeia os gatilhos que movem a pré-matrícula de estado.
type Event string

const (
	// EventFeeDue dispara no envio da inscrição quando há taxa a pagar.
	EventFeeDue Event = "fee_due"
	// EventPaymentSettled dispara via webhook do gateway ou baixa manual da equipe.
	EventPaymentSettled Event = "payment_settled"
	// EventApproved dispara na aprovação administrativa pós-pagamento.
	EventApproved Event = "approved"
	// EventRejected dispara na rejeição administrativa.
	EventRejected Event = "rejected"
	// EventManualOverride é a cortesia/correção da equipe: único gatilho
	// que escapa de estados terminais.
	EventManualOverride Event = "manual_override"
)

// Transition é uma aresta permitida na máquina de estados.
type Transition struct {
	From  Status
	To    Status
	Event Event
}

var transitions = []Transition{
	{From: StatusPending, To: StatusPendingPayment, Event: EventFeeDue},

	{From: StatusPending, To: StatusPaymentConfirmed, Event: EventPaymentSettled},
	{From: StatusPendingPayment, To: StatusPaymentConfirmed, Event: EventPaymentSettled},

	{From: StatusPaymentConfirmed, To: StatusApproved, Event: EventApproved},

	{From: StatusPending, To: StatusRejected, Event: EventRejected},
	{From: StatusPendingPayment, To: StatusRejected, Event: EventRejected},
	{From: StatusPaymentConfirmed, To: StatusRejected, Event: EventRejected},

	// Override manual alcança approved de qualquer estado, inclusive rejected.
	{From: StatusPending, To: StatusApproved, Event: EventManualOverride},
	{From: StatusPendingPayment, To: StatusApproved, Event: EventManualOverride},
	{From: StatusPaymentConfirmed, To: StatusApproved, Event: EventManualOverride},
	{From: StatusRejected, To: StatusApproved, Event: EventManualOverride},
}

// ErrTransitionDenied indica gatilho não permitido para o estado atual.
type ErrTransitionDenied struct {
	From  Status
	Event Event
}

func (e ErrTransitionDenied) Error() string {
	return fmt.Sprintf("transição não permitida: %s a partir de %s", e.Event, e.From)
}

// Decide resolve o estado destino para o gatilho informado. Estados
// terminais (rejected) só saem via EventManualOverride.
func Decide(from Status, event Event) (Status, error) {
	for _, t := range transitions {
		if t.From == from && t.Event == event {
			return t.To, nil
		}
	}
	return "", ErrTransitionDenied{From: from, Event: event}
}

// Terminal informa se o estado não possui saída regular.
func Terminal(s Status) bool {
	for _, t := range transitions {
		if t.From == s && t.Event != EventManualOverride {
			return false
		}
	}
	return true
}
