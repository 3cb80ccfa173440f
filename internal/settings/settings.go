package settings

import (
	"time"

	"github.com/google/uuid"

	"github.com/portalcapacita/api/internal/webhook"
)

// InstitutionSettings guarda os dados institucionais exibidos nos
// documentos e no portal.
type InstitutionSettings struct {
	Nome                 string     `json:"nome"`
	CNPJ                 string     `json:"cnpj"`
	Endereco             string     `json:"endereco"`
	Cidade               string     `json:"cidade"`
	Telefone             string     `json:"telefone"`
	Email                string     `json:"email"`
	LogoURL              string     `json:"logo_url"`
	AssinaturaDiretorURL string     `json:"assinatura_diretor_url"`
	DiretorNome          string     `json:"diretor_nome"`
	VerificationBaseURL  string     `json:"verification_base_url"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	UpdatedBy            *uuid.UUID `json:"updated_by,omitempty"`
}

// PaymentSettings guarda as credenciais do gateway PIX. A chave nunca
// é exposta inteira em respostas HTTP; os handlers usam MaskedKey.
type PaymentSettings struct {
	AsaasAPIKey string     `json:"asaas_api_key"`
	Sandbox     bool       `json:"sandbox"`
	BaseURL     string     `json:"base_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UpdatedBy   *uuid.UUID `json:"updated_by,omitempty"`
}

// MaskedKey devolve a chave truncada para exibição.
func (p PaymentSettings) MaskedKey() string {
	if len(p.AsaasAPIKey) <= 8 {
		if p.AsaasAPIKey == "" {
			return ""
		}
		return "****"
	}
	return p.AsaasAPIKey[:4] + "****" + p.AsaasAPIKey[len(p.AsaasAPIKey)-4:]
}

// Configured indica se o gateway pode ser usado.
func (p PaymentSettings) Configured() bool {
	return p.AsaasAPIKey != ""
}

// WebhookSettings guarda o destino dos webhooks de saída e os eventos
// assinados.
type WebhookSettings struct {
	URL       string              `json:"url"`
	Events    []webhook.EventType `json:"events"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	UpdatedBy *uuid.UUID          `json:"updated_by,omitempty"`
}
