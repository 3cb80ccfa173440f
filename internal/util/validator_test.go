package util

import "testing"

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("maria@example.com"); err != nil {
		t.Fatalf("e-mail válido recusado: %v", err)
	}
	for _, bad := range []string{"", "   ", "sem-arroba", "a@"} {
		if err := ValidateEmail(bad); err == nil {
			t.Errorf("ValidateEmail(%q) deveria falhar", bad)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345678"); err != nil {
		t.Fatalf("senha de 8 caracteres recusada: %v", err)
	}
	if err := ValidatePassword("1234567"); err == nil {
		t.Error("senha curta deveria falhar")
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("Maria", "nome"); err != nil {
		t.Fatalf("valor preenchido recusado: %v", err)
	}
	for _, bad := range []string{"", "   "} {
		if err := RequireString(bad, "nome"); err == nil {
			t.Errorf("RequireString(%q) deveria falhar", bad)
		}
	}
}
