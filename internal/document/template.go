package document

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DocType identifica o documento que um template produz.
type DocType string

const (
	DocStudyPlan   DocType = "study_plan"
	DocDeclaration DocType = "declaration"
	DocCertificate DocType = "certificate"
)

// KnownDocType valida o tipo de documento.
func KnownDocType(t DocType) bool {
	switch t {
	case DocStudyPlan, DocDeclaration, DocCertificate:
		return true
	}
	return false
}

// Template é um layout de documento editável pelo back-office. Os
// blocos ficam em JSONB e são normalizados na leitura.
type Template struct {
	ID        uuid.UUID       `json:"id"`
	Nome      string          `json:"nome"`
	DocType   DocType         `json:"doc_type"`
	Blocks    json.RawMessage `json:"blocks"`
	Ativo     bool            `json:"ativo"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ParseBlocks decodifica e normaliza os blocos do template. JSON
// inválido ou vazio cai no layout padrão do tipo, para que a geração
// de documentos nunca falhe por template corrompido.
func (t Template) ParseBlocks() []ContentBlock {
	if len(t.Blocks) > 0 {
		var blocks []ContentBlock
		if err := json.Unmarshal(t.Blocks, &blocks); err == nil && len(blocks) > 0 {
			return NormalizeOrder(blocks)
		}
	}
	return DefaultBlocks(t.DocType)
}

// DefaultBlocks devolve o layout padrão de cada tipo de documento,
// usado quando não há template cadastrado.
func DefaultBlocks(docType DocType) []ContentBlock {
	switch docType {
	case DocCertificate:
		return NormalizeOrder([]ContentBlock{
			{ID: "frame", Type: BlockFrame, Order: 0, Config: BlockConfig{"style": "double"}},
			{ID: "header", Type: BlockHeader, Order: 1, Config: BlockConfig{"layout": 2}},
			{ID: "title", Type: BlockTitle, Order: 2, Config: BlockConfig{"text": "Certificado de Conclusão", "font_size": 20.0, "margin_top": 10.0}},
			{ID: "body", Type: BlockParagraph, Order: 3, Config: BlockConfig{
				"text":  "Certificamos que {{student_name}} concluiu o curso {{course_name}}, com carga horária de {{course_hours}} horas, no período de {{start_date}} a {{completion_date}}.",
				"align": "center", "font_size": 12.0, "margin_top": 8.0,
			}},
			{ID: "signature", Type: BlockSignature, Order: 4, Config: BlockConfig{"margin_top": 20.0}},
			{ID: "qrcode", Type: BlockQRCode, Order: 5, Config: BlockConfig{"size": 26.0, "label": "Código {{certificate_code}}", "margin_top": 8.0}},
			{ID: "footer", Type: BlockFooter, Order: 6},
		})
	case DocDeclaration:
		return NormalizeOrder([]ContentBlock{
			{ID: "header", Type: BlockHeader, Order: 0, Config: BlockConfig{"layout": 4}},
			{ID: "title", Type: BlockTitle, Order: 1, Config: BlockConfig{"text": "Declaração de Matrícula", "margin_top": 10.0}},
			{ID: "body", Type: BlockParagraph, Order: 2, Config: BlockConfig{
				"text":      "Declaramos, para os devidos fins, que {{student_name}}, CPF {{student_cpf}}, encontra-se regularmente matriculado(a) no curso {{course_name}}, com carga horária de {{course_hours}} horas e início em {{start_date}}.",
				"margin_top": 8.0,
			}},
			{ID: "signature", Type: BlockSignature, Order: 3, Config: BlockConfig{"margin_top": 25.0}},
			{ID: "footer", Type: BlockFooter, Order: 4},
		})
	default:
		return NormalizeOrder([]ContentBlock{
			{ID: "header", Type: BlockHeader, Order: 0, Config: BlockConfig{"layout": 1}},
			{ID: "title", Type: BlockTitle, Order: 1, Config: BlockConfig{"text": "Plano de Estudos - {{course_name}}", "font_size": 15.0, "margin_top": 6.0}},
			{ID: "student", Type: BlockParagraph, Order: 2, Config: BlockConfig{"text": "Aluno(a): {{student_name}}", "align": "left", "margin_top": 4.0}},
			{ID: "modules", Type: BlockModulesTable, Order: 3, Config: BlockConfig{"margin_top": 5.0}},
			{ID: "cronograma", Type: BlockCronogramaTable, Order: 4, Config: BlockConfig{"margin_top": 5.0}},
			{ID: "footer", Type: BlockFooter, Order: 5},
		})
	}
}
