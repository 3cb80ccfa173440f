package document

import (
	"sort"
)

// BlockType enumera os blocos de conteúdo suportados pelos templates.
type BlockType string

const (
	BlockHeader          BlockType = "header"
	BlockTitle           BlockType = "title"
	BlockParagraph       BlockType = "paragraph"
	BlockTable           BlockType = "table"
	BlockModulesTable    BlockType = "modules_table"
	BlockCronogramaTable BlockType = "cronograma_table"
	BlockSignature       BlockType = "signature"
	BlockFooter          BlockType = "footer"
	BlockImage           BlockType = "image"
	BlockQRCode          BlockType = "qrcode"
	BlockSpacer          BlockType = "spacer"
	BlockFrame           BlockType = "frame"
)

// KnownType informa se o tipo de bloco é reconhecido pelo renderizador.
func KnownType(t BlockType) bool {
	switch t {
	case BlockHeader, BlockTitle, BlockParagraph, BlockTable, BlockModulesTable,
		BlockCronogramaTable, BlockSignature, BlockFooter, BlockImage,
		BlockQRCode, BlockSpacer, BlockFrame:
		return true
	}
	return false
}

// BlockConfig é o saco de configuração específico de cada tipo de bloco.
type BlockConfig map[string]any

// String lê uma chave textual com default.
func (c BlockConfig) String(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Float lê uma chave numérica com default. JSON decodifica números como
// float64, mas aceita int para configs montadas em código.
func (c BlockConfig) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool lê uma chave booleana com default.
func (c BlockConfig) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// ContentBlock é uma unidade renderizável do template.
type ContentBlock struct {
	ID     string      `json:"id"`
	Type   BlockType   `json:"type"`
	Order  int         `json:"order"`
	Config BlockConfig `json:"config,omitempty"`
}

// NormalizeOrder reordena os blocos deixando a numeração contígua a
// partir de zero. Um bloco frame, se presente, é forçado para a
// primeira posição: ele desenha a borda de fundo antes dos demais.
func NormalizeOrder(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, len(blocks))
	copy(out, blocks)

	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Type == BlockFrame) != (out[j].Type == BlockFrame) {
			return out[i].Type == BlockFrame
		}
		return out[i].Order < out[j].Order
	})

	for i := range out {
		out[i].Order = i
	}
	return out
}
