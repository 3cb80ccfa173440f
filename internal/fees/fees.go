package fees

import (
	"github.com/shopspring/decimal"
)

// MinimoGateway é o menor valor cobrável pelo gateway PIX.
var MinimoGateway = decimal.NewFromFloat(5.00)

// taxaPreMatricula é fixa independente da duração do curso.
var taxaPreMatricula = decimal.NewFromFloat(57.00)

// tabela mapeia duração em dias para a taxa de matrícula.
var tabela = map[int]decimal.Decimal{
	15: decimal.NewFromFloat(147.00),
	30: decimal.NewFromFloat(294.00),
	45: decimal.NewFromFloat(441.00),
	60: decimal.NewFromFloat(588.00),
	90: decimal.NewFromFloat(882.00),
}

// Fees agrupa as taxas resolvidas para uma duração de curso.
type Fees struct {
	Enrollment    decimal.Decimal `json:"enrollment_fee"`
	PreEnrollment decimal.Decimal `json:"pre_enrollment_fee"`
}

// Resolve devolve as taxas para a duração informada. Durações fora da
// tabela retornam taxa de matrícula zerada; use Supported antes de
// aceitar a duração em fluxos de cobrança.
func Resolve(durationDays int) Fees {
	if valor, ok := tabela[durationDays]; ok {
		return Fees{Enrollment: valor, PreEnrollment: taxaPreMatricula}
	}
	return Fees{Enrollment: decimal.Zero, PreEnrollment: taxaPreMatricula}
}

// Supported indica se a duração possui taxa de matrícula definida.
func Supported(durationDays int) bool {
	_, ok := tabela[durationDays]
	return ok
}

// Durations lista as durações suportadas em ordem crescente.
func Durations() []int {
	return []int{15, 30, 45, 60, 90}
}

// DiscountedEnrollment aplica o desconto da pré-matrícula sobre a taxa
// de matrícula, respeitando o mínimo cobrável do gateway.
func (f Fees) DiscountedEnrollment() decimal.Decimal {
	return Discount(f.Enrollment, f.PreEnrollment)
}

// Discount subtrai o valor já pago e aplica o piso do gateway.
func Discount(original, alreadyPaid decimal.Decimal) decimal.Decimal {
	final := original.Sub(alreadyPaid)
	if final.LessThan(MinimoGateway) {
		return MinimoGateway
	}
	return final
}
