package util

import "strings"

// NormalizeCPF remove pontuação, mantendo apenas os dígitos.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	b.Grow(11)
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF confere os dois dígitos verificadores do CPF. Sequências
// com todos os dígitos iguais são rejeitadas.
func ValidCPF(cpf string) bool {
	cpf = NormalizeCPF(cpf)
	if len(cpf) != 11 {
		return false
	}

	same := true
	for i := 1; i < 11; i++ {
		if cpf[i] != cpf[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	digit := func(upto int) byte {
		sum := 0
		for i := 0; i < upto; i++ {
			sum += int(cpf[i]-'0') * (upto + 1 - i)
		}
		rest := (sum * 10) % 11
		if rest == 10 {
			rest = 0
		}
		return byte(rest) + '0'
	}

	return digit(9) == cpf[9] && digit(10) == cpf[10]
}
