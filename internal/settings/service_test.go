package settings

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/portalcapacita/api/internal/webhook"
)

type stubRepo struct {
	institution *InstitutionSettings
	payment     *PaymentSettings
	webhook     *WebhookSettings

	savedPayment *PaymentSettings
}

func (s *stubRepo) GetInstitution(ctx context.Context) (*InstitutionSettings, error) {
	if s.institution == nil {
		return nil, ErrNotFound
	}
	return s.institution, nil
}

func (s *stubRepo) SaveInstitution(ctx context.Context, cfg InstitutionSettings, by uuid.UUID) (*InstitutionSettings, error) {
	s.institution = &cfg
	return &cfg, nil
}

func (s *stubRepo) GetPayment(ctx context.Context) (*PaymentSettings, error) {
	if s.payment == nil {
		return nil, ErrNotFound
	}
	return s.payment, nil
}

func (s *stubRepo) SavePayment(ctx context.Context, cfg PaymentSettings, by uuid.UUID) (*PaymentSettings, error) {
	s.payment = &cfg
	s.savedPayment = &cfg
	return &cfg, nil
}

func (s *stubRepo) GetWebhook(ctx context.Context) (*WebhookSettings, error) {
	if s.webhook == nil {
		return nil, ErrNotFound
	}
	return s.webhook, nil
}

func (s *stubRepo) SaveWebhook(ctx context.Context, cfg WebhookSettings, by uuid.UUID) (*WebhookSettings, error) {
	s.webhook = &cfg
	return &cfg, nil
}

func TestMissingRowsComeBackEmpty(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)
	ctx := context.Background()

	inst, err := svc.Institution(ctx)
	if err != nil {
		t.Fatalf("institution: %v", err)
	}
	if inst.Nome != "" {
		t.Fatal("sem registro deveria vir vazio")
	}

	pay, err := svc.Payment(ctx)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if pay.Configured() {
		t.Fatal("gateway não deveria estar configurado")
	}
}

func TestSavePaymentNotifiesGateway(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	var notified *PaymentSettings
	svc.OnPaymentChange = func(p PaymentSettings) { notified = &p }

	saved, err := svc.SavePayment(context.Background(), PaymentSettings{AsaasAPIKey: "aact_prod_000", Sandbox: false}, uuid.New())
	if err != nil {
		t.Fatalf("save payment: %v", err)
	}
	if notified == nil || notified.AsaasAPIKey != "aact_prod_000" {
		t.Fatal("OnPaymentChange não recebeu as novas credenciais")
	}
	if !saved.Configured() {
		t.Fatal("credenciais salvas deveriam configurar o gateway")
	}
}

func TestMaskedKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"curta", "****"},
		{"aact_prod_1234567890", "aact****7890"},
	}
	for _, tc := range cases {
		got := PaymentSettings{AsaasAPIKey: tc.key}.MaskedKey()
		if got != tc.want {
			t.Fatalf("MaskedKey(%q) = %q, esperava %q", tc.key, got, tc.want)
		}
	}
}

func TestWebhookConfigSource(t *testing.T) {
	repo := &stubRepo{webhook: &WebhookSettings{
		URL:    "https://hooks.example/portal",
		Events: []webhook.EventType{webhook.EventPaymentConfirmed},
	}}
	svc := NewService(repo, nil)

	url, events, err := svc.WebhookConfig(context.Background())
	if err != nil {
		t.Fatalf("webhook config: %v", err)
	}
	if url != "https://hooks.example/portal" {
		t.Fatalf("url inesperada: %s", url)
	}
	if len(events) != 1 || events[0] != webhook.EventPaymentConfirmed {
		t.Fatalf("eventos inesperados: %v", events)
	}
}
