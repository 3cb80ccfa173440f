package document

import (
	"regexp"
	"strings"
)

// VariableBag reúne os valores que substituem os tokens {{nome}} nos
// textos dos blocos.
type VariableBag map[string]string

var tokenRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Sanitize remove caracteres de controle e sequências de token do
// valor, evitando que dados de cadastro quebrem o layout ou injetem
// novos tokens no texto.
func Sanitize(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	out = strings.ReplaceAll(out, "{{", "")
	out = strings.ReplaceAll(out, "}}", "")
	return strings.TrimSpace(out)
}

// Substitute troca cada token {{nome}} pelo valor sanitizado presente
// no saco de variáveis. Tokens sem valor são substituídos por vazio
// para nunca vazarem no documento final.
func (v VariableBag) Substitute(text string) string {
	return tokenRe.ReplaceAllStringFunc(text, func(m string) string {
		name := tokenRe.FindStringSubmatch(m)[1]
		return Sanitize(v[name])
	})
}
