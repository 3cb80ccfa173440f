package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideFluxoFeliz(t *testing.T) {
	steps := []struct {
		from  Status
		event Event
		want  Status
	}{
		{StatusPending, EventFeeDue, StatusPendingPayment},
		{StatusPendingPayment, EventPaymentSettled, StatusPaymentConfirmed},
		{StatusPaymentConfirmed, EventApproved, StatusApproved},
	}

	for _, step := range steps {
		got, err := Decide(step.from, step.event)
		require.NoError(t, err, "%s + %s", step.from, step.event)
		assert.Equal(t, step.want, got)
	}
}

func TestDecideRejectedEhTerminal(t *testing.T) {
	// Nenhum gatilho regular escapa de rejected.
	for _, event := range []Event{EventFeeDue, EventPaymentSettled, EventApproved, EventRejected} {
		_, err := Decide(StatusRejected, event)
		assert.Error(t, err, "rejected + %s", event)
	}

	// Só o override manual da equipe reabre o fluxo.
	got, err := Decide(StatusRejected, EventManualOverride)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got)

	assert.True(t, Terminal(StatusRejected))
	assert.False(t, Terminal(StatusPending))
}

func TestDecideNaoPulaPagamento(t *testing.T) {
	// Aprovação regular exige pagamento confirmado antes.
	_, err := Decide(StatusPending, EventApproved)
	assert.Error(t, err)
	_, err = Decide(StatusPendingPayment, EventApproved)
	assert.Error(t, err)
}

func TestDecideBaixaManualAntesDaCobranca(t *testing.T) {
	// A equipe pode dar baixa de pagamento mesmo antes da cobrança ser gerada.
	got, err := Decide(StatusPending, EventPaymentSettled)
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentConfirmed, got)
}

func TestDecideMensagemDeErro(t *testing.T) {
	_, err := Decide(StatusApproved, EventFeeDue)
	require.Error(t, err)
	var denied ErrTransitionDenied
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, StatusApproved, denied.From)
	assert.Equal(t, EventFeeDue, denied.Event)
}
