package asaas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{AccessToken: "token-teste", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestCreateCustomerEnviaAccessToken(t *testing.T) {
	var gotToken string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("access_token")
		if r.Method != http.MethodPost || r.URL.Path != "/customers" {
			t.Errorf("rota inesperada: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Customer{ID: "cus_001", Name: "Maria"})
	})

	customer, err := client.CreateCustomer(context.Background(), CreateCustomerInput{Name: "Maria", CPFCNPJ: "52998224725"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if customer.ID != "cus_001" {
		t.Errorf("id = %s", customer.ID)
	}
	if gotToken != "token-teste" {
		t.Errorf("access_token = %q", gotToken)
	}
}

func TestCreateChargeValorMinimo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("não deveria chamar o gateway")
	})

	_, err := client.CreateCharge(context.Background(), CreateChargeInput{
		Customer: "cus_001",
		Value:    decimal.NewFromFloat(4.99),
	})
	if err == nil {
		t.Fatal("esperava erro de valor mínimo")
	}
}

func TestCreateChargeDefaults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var input CreateChargeInput
		_ = json.NewDecoder(r.Body).Decode(&input)
		if input.BillingType != "PIX" {
			t.Errorf("billingType = %s", input.BillingType)
		}
		if input.DueDate == "" {
			t.Error("dueDate vazio")
		}
		_ = json.NewEncoder(w).Encode(Charge{ID: "pay_001", Status: "PENDING"})
	})

	charge, err := client.CreateCharge(context.Background(), CreateChargeInput{
		Customer: "cus_001",
		Value:    decimal.NewFromFloat(57.00),
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if charge.ID != "pay_001" {
		t.Errorf("id = %s", charge.ID)
	}
}

func TestGetPixQRCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_001/pixQrCode" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(PixQRCode{
			EncodedImage:   "aW1n",
			Payload:        "00020126...",
			ExpirationDate: "2026-09-02 23:59:59",
		})
	})

	qr, err := client.GetPixQRCode(context.Background(), "pay_001")
	if err != nil {
		t.Fatalf("GetPixQRCode: %v", err)
	}
	exp, err := qr.Expiration()
	if err != nil {
		t.Fatalf("Expiration: %v", err)
	}
	if exp.Year() != 2026 {
		t.Errorf("expiração = %s", exp)
	}
}

func TestErroDeAPI(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"invalid_value","description":"valor inválido"}]}`))
	})

	_, err := client.CreateCustomer(context.Background(), CreateCustomerInput{Name: "X", CPFCNPJ: "1"})
	if err == nil {
		t.Fatal("esperava erro")
	}
}

func TestAccessTokenRejeitado(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.GetPixQRCode(context.Background(), "pay_001")
	if err != ErrUnauthorized {
		t.Fatalf("err = %v", err)
	}
}
