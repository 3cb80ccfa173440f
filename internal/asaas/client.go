package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultProductionBase = "https://api.asaas.com/v3"
	defaultSandboxBase    = "https://sandbox.asaas.com/api/v3"
)

// ErrUnauthorized indica access_token rejeitado pelo gateway.
var ErrUnauthorized = errors.New("asaas: access_token inválido")

// Client encapsula chamadas à API PIX do Asaas.
type Client struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string
}

// Config descreve credenciais e ambiente do gateway.
type Config struct {
	AccessToken string
	Sandbox     bool
	// BaseURL sobrescreve a URL do ambiente quando informada (útil em testes).
	BaseURL    string
	HTTPClient *http.Client
}

// New cria um cliente autenticado por access_token.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("asaas: access_token obrigatório")
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		if cfg.Sandbox {
			base = defaultSandboxBase
		} else {
			base = defaultProductionBase
		}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		httpClient:  client,
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimRight(base, "/"),
	}, nil
}

// Customer representa o pagador registrado no gateway.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	CPFCNPJ string `json:"cpfCnpj"`
	Email   string `json:"email"`
	Phone   string `json:"mobilePhone"`
}

// CreateCustomerInput carrega os dados mínimos exigidos pelo gateway.
type CreateCustomerInput struct {
	Name    string `json:"name"`
	CPFCNPJ string `json:"cpfCnpj"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"mobilePhone,omitempty"`
}

// CreateCustomer registra um pagador e devolve o identificador externo.
func (c *Client) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.CPFCNPJ) == "" {
		return nil, errors.New("asaas: nome e CPF do pagador obrigatórios")
	}

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", input, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// Charge representa uma cobrança criada no gateway.
type Charge struct {
	ID          string          `json:"id"`
	Customer    string          `json:"customer"`
	Value       decimal.Decimal `json:"value"`
	Status      string          `json:"status"`
	DueDate     string          `json:"dueDate"`
	BillingType string          `json:"billingType"`
}

// CreateChargeInput descreve a cobrança PIX a criar.
type CreateChargeInput struct {
	Customer    string          `json:"customer"`
	BillingType string          `json:"billingType"`
	Value       decimal.Decimal `json:"value"`
	DueDate     string          `json:"dueDate"`
	Description string          `json:"description,omitempty"`
	ExternalRef string          `json:"externalReference,omitempty"`
}

// CreateCharge cria uma cobrança PIX. O valor mínimo (5.00) é validado
// antes de bater no gateway para devolver erro mais claro ao chamador.
func (c *Client) CreateCharge(ctx context.Context, input CreateChargeInput) (*Charge, error) {
	if input.Value.LessThan(decimal.NewFromInt(5)) {
		return nil, fmt.Errorf("asaas: valor %s abaixo do mínimo cobrável", input.Value)
	}
	if input.BillingType == "" {
		input.BillingType = "PIX"
	}
	if input.DueDate == "" {
		input.DueDate = time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	}

	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/payments", input, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

// PixQRCode carrega os artefatos do QR Code de uma cobrança.
type PixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

// Expiration interpreta a data de expiração no fuso informado pelo gateway.
func (q PixQRCode) Expiration() (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", q.ExpirationDate)
}

// GetPixQRCode busca imagem e payload copia-e-cola de uma cobrança.
func (c *Client) GetPixQRCode(ctx context.Context, chargeID string) (*PixQRCode, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, errors.New("asaas: id da cobrança obrigatório")
	}

	var qr PixQRCode
	if err := c.do(ctx, http.MethodGet, "/payments/"+chargeID+"/pixQrCode", nil, &qr); err != nil {
		return nil, err
	}
	return &qr, nil
}

type apiError struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("access_token", c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("asaas: %s (%s)", apiErr.Errors[0].Description, apiErr.Errors[0].Code)
		}
		return fmt.Errorf("asaas: resposta inesperada %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
