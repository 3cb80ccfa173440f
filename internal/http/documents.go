package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/portalcapacita/api/internal/document"
	"github.com/portalcapacita/api/internal/settings"
	"github.com/portalcapacita/api/internal/storage"
)

// TemplateSource resolve o template ativo de cada tipo de documento.
type TemplateSource interface {
	ActiveByType(ctx context.Context, docType document.DocType) (document.Template, error)
}

// InstitutionSource fornece os dados institucionais impressos nos PDFs.
type InstitutionSource interface {
	Institution(ctx context.Context) (settings.InstitutionSettings, error)
}

// DocumentGenerator monta o PDF de um documento: escolhe o template
// ativo (ou o padrão do tipo), injeta os dados da instituição, delega
// a renderização e arquiva uma cópia no object storage.
type DocumentGenerator struct {
	templates TemplateSource
	inst      InstitutionSource
	renderer  *document.Renderer
	uploader  storage.Uploader
	log       zerolog.Logger
}

func NewDocumentGenerator(templates TemplateSource, inst InstitutionSource, renderer *document.Renderer, uploader storage.Uploader, log zerolog.Logger) *DocumentGenerator {
	return &DocumentGenerator{templates: templates, inst: inst, renderer: renderer, uploader: uploader, log: log}
}

// Produce renderiza o documento do tipo pedido. Sem template ativo,
// cai no layout padrão para nunca bloquear a emissão.
func (g *DocumentGenerator) Produce(ctx context.Context, docType document.DocType, data document.Data) ([]byte, error) {
	if !document.KnownDocType(docType) {
		return nil, fmt.Errorf("tipo de documento desconhecido: %s", docType)
	}

	blocks := document.DefaultBlocks(docType)
	tpl, err := g.templates.ActiveByType(ctx, docType)
	switch {
	case err == nil:
		blocks = tpl.ParseBlocks()
	case errors.Is(err, document.ErrNotFound):
		g.log.Debug().Str("doc_type", string(docType)).Msg("sem template ativo, usando layout padrão")
	default:
		return nil, err
	}

	inst, err := g.inst.Institution(ctx)
	if err != nil {
		return nil, err
	}
	data.Institution = document.Institution{
		Nome:          inst.Nome,
		CNPJ:          inst.CNPJ,
		Endereco:      inst.Endereco,
		Cidade:        inst.Cidade,
		Telefone:      inst.Telefone,
		Email:         inst.Email,
		LogoURL:       inst.LogoURL,
		DiretorNome:   inst.DiretorNome,
		AssinaturaURL: inst.AssinaturaDiretorURL,
	}

	if data.Vars == nil {
		data.Vars = document.VariableBag{}
	}
	if _, ok := data.Vars["institution_name"]; !ok {
		data.Vars["institution_name"] = inst.Nome
	}
	if _, ok := data.Vars["city"]; !ok {
		data.Vars["city"] = inst.Cidade
	}
	if _, ok := data.Vars["current_date"]; !ok {
		data.Vars["current_date"] = time.Now().Format("02/01/2006")
	}

	pdf, err := g.renderer.Render(ctx, blocks, data)
	if err != nil {
		return nil, err
	}
	g.archive(ctx, docType, pdf)
	return pdf, nil
}

// archive guarda uma cópia do PDF gerado no object storage. Melhor
// esforço: a emissão nunca falha por causa do arquivamento.
func (g *DocumentGenerator) archive(ctx context.Context, docType document.DocType, pdf []byte) {
	key := fmt.Sprintf("documentos/%s/%s.pdf", docType, uuid.NewString())
	result, err := g.uploader.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        pdf,
		ContentType: "application/pdf",
	})
	if err != nil {
		g.log.Debug().Err(err).Str("key", key).Msg("cópia do documento não arquivada")
		return
	}
	g.log.Info().Str("key", key).Str("url", result.URL).Msg("documento arquivado")
}
