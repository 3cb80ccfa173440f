package document

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNormalizeOrder(t *testing.T) {
	blocks := []ContentBlock{
		{ID: "b", Type: BlockParagraph, Order: 7},
		{ID: "a", Type: BlockTitle, Order: 3},
		{ID: "f", Type: BlockFrame, Order: 5},
	}
	out := NormalizeOrder(blocks)

	if out[0].Type != BlockFrame {
		t.Fatalf("frame deveria vir primeiro, veio %s", out[0].Type)
	}
	for i, blk := range out {
		if blk.Order != i {
			t.Fatalf("ordem não contígua: posição %d com order %d", i, blk.Order)
		}
	}
	if out[1].ID != "a" || out[2].ID != "b" {
		t.Fatalf("ordem relativa perdida: %s, %s", out[1].ID, out[2].ID)
	}
	if blocks[0].Order != 7 {
		t.Fatal("entrada original foi alterada")
	}
}

func TestSubstitute(t *testing.T) {
	vars := VariableBag{
		"student_name": "Maria\x00 da Silva",
		"course_name":  "Gestão {{injetado}} Pública",
	}
	got := vars.Substitute("Certificamos que {{student_name}} concluiu {{ course_name }}. Código: {{codigo}}")
	want := "Certificamos que Maria da Silva concluiu Gestão injetado Pública. Código: "
	if got != want {
		t.Fatalf("substituição incorreta:\n got %q\nwant %q", got, want)
	}
}

func TestRenderProducesPDF(t *testing.T) {
	r := NewRenderer(zerolog.Nop())
	r.FetchImage = func(ctx context.Context, url string) ([]byte, error) {
		t.Fatalf("não deveria buscar imagem: %s", url)
		return nil, nil
	}

	blocks := []ContentBlock{
		{Type: BlockFrame, Order: 0, Config: BlockConfig{"style": "double"}},
		{Type: BlockHeader, Order: 1, Config: BlockConfig{"layout": float64(2)}},
		{Type: BlockTitle, Order: 2, Config: BlockConfig{"text": "Declaração de Matrícula"}},
		{Type: BlockParagraph, Order: 3, Config: BlockConfig{"text": "Declaramos que {{student_name}} está matriculado(a) no curso {{course_name}}."}},
		{Type: BlockModulesTable, Order: 4},
		{Type: BlockCronogramaTable, Order: 5},
		{Type: BlockQRCode, Order: 6, Config: BlockConfig{"size": float64(25), "label": "Verifique em {{verification_url}}"}},
		{Type: BlockSignature, Order: 7},
		{Type: BlockFooter, Order: 8},
		{Type: "holograma", Order: 9},
	}

	data := Data{
		Vars: VariableBag{
			"student_name":     "João Pereira",
			"course_name":      "Gestão Pública Municipal",
			"verification_url": "https://portal.example/verificar/CERT-AAAA-BBBB-CCCC",
		},
		Institution: Institution{
			Nome:        "Instituto Capacita",
			CNPJ:        "12.345.678/0001-90",
			Endereco:    "Rua das Flores, 100",
			Cidade:      "Salvador - BA",
			DiretorNome: "Ana Souza",
		},
		Modules: []ModuleRow{
			{Titulo: "Fundamentos", Hours: 40, Topicos: []string{"Introdução", "Legislação"}},
			{Titulo: "Prática", Hours: 40},
		},
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	pdf, err := r.Render(context.Background(), blocks, data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatal("saída não é um PDF")
	}
	if len(pdf) < 1000 {
		t.Fatalf("PDF suspeito de estar vazio: %d bytes", len(pdf))
	}
}

func TestRenderSkipsUnavailableImages(t *testing.T) {
	r := NewRenderer(zerolog.Nop())
	r.FetchImage = func(ctx context.Context, url string) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}

	blocks := []ContentBlock{
		{Type: BlockHeader, Order: 0, Config: BlockConfig{"layout": float64(1)}},
		{Type: BlockImage, Order: 1, Config: BlockConfig{"source": "logo"}},
	}
	data := Data{Institution: Institution{Nome: "Instituto", LogoURL: "https://cdn.example/logo.png"}}

	pdf, err := r.Render(context.Background(), blocks, data)
	if err != nil {
		t.Fatalf("render deveria tolerar imagem indisponível: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatal("saída não é um PDF")
	}
}
