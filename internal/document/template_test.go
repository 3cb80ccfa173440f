package document

import (
	"encoding/json"
	"testing"
)

func TestParseBlocksFallsBackOnBadJSON(t *testing.T) {
	cases := []struct {
		name   string
		blocks json.RawMessage
	}{
		{"vazio", nil},
		{"invalido", json.RawMessage(`{nao é json`)},
		{"lista vazia", json.RawMessage(`[]`)},
		{"objeto em vez de lista", json.RawMessage(`{"type":"title"}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := Template{DocType: DocCertificate, Blocks: tc.blocks}
			blocks := tpl.ParseBlocks()
			if len(blocks) == 0 {
				t.Fatal("fallback deveria devolver o layout padrão")
			}
			if blocks[0].Type != BlockFrame {
				t.Fatalf("layout padrão de certificado começa com frame, veio %s", blocks[0].Type)
			}
		})
	}
}

func TestParseBlocksNormalizesStoredOrder(t *testing.T) {
	raw := json.RawMessage(`[
        {"id":"p","type":"paragraph","order":9,"config":{"text":"corpo"}},
        {"id":"t","type":"title","order":4,"config":{"text":"Título"}}
    ]`)
	tpl := Template{DocType: DocDeclaration, Blocks: raw}
	blocks := tpl.ParseBlocks()

	if len(blocks) != 2 {
		t.Fatalf("esperava 2 blocos, veio %d", len(blocks))
	}
	if blocks[0].ID != "t" || blocks[0].Order != 0 {
		t.Fatalf("título deveria vir primeiro com order 0: %+v", blocks[0])
	}
	if blocks[1].Order != 1 {
		t.Fatalf("ordem não contígua: %+v", blocks[1])
	}
}

func TestDefaultBlocksPerType(t *testing.T) {
	for _, dt := range []DocType{DocStudyPlan, DocDeclaration, DocCertificate} {
		blocks := DefaultBlocks(dt)
		if len(blocks) == 0 {
			t.Fatalf("tipo %s sem layout padrão", dt)
		}
		for i, b := range blocks {
			if b.Order != i {
				t.Fatalf("tipo %s com ordem não contígua na posição %d", dt, i)
			}
			if !KnownType(b.Type) {
				t.Fatalf("tipo %s com bloco desconhecido %s", dt, b.Type)
			}
		}
	}
}
