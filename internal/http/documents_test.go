package http

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalcapacita/api/internal/document"
	"github.com/portalcapacita/api/internal/settings"
	"github.com/portalcapacita/api/internal/storage"
)

type stubTemplates struct{}

func (stubTemplates) ActiveByType(ctx context.Context, docType document.DocType) (document.Template, error) {
	return document.Template{}, document.ErrNotFound
}

type stubInstitution struct{}

func (stubInstitution) Institution(ctx context.Context) (settings.InstitutionSettings, error) {
	return settings.InstitutionSettings{
		Nome:        "Instituto Capacita",
		CNPJ:        "12.345.678/0001-90",
		Cidade:      "João Pessoa - PB",
		DiretorNome: "Carlos Andrade",
	}, nil
}

type recordingUploader struct {
	uploads []storage.UploadInput
}

func (u *recordingUploader) Upload(ctx context.Context, input storage.UploadInput) (*storage.UploadResult, error) {
	u.uploads = append(u.uploads, input)
	return &storage.UploadResult{URL: "https://cdn.example.com/" + input.Key}, nil
}

func newDocGenerator(uploader storage.Uploader) *DocumentGenerator {
	renderer := document.NewRenderer(zerolog.Nop())
	return NewDocumentGenerator(stubTemplates{}, stubInstitution{}, renderer, uploader, zerolog.Nop())
}

func TestDocumentGeneratorArquivaCopia(t *testing.T) {
	uploader := &recordingUploader{}
	g := newDocGenerator(uploader)

	pdf, err := g.Produce(context.Background(), document.DocDeclaration, document.Data{
		Vars: document.VariableBag{"student_name": "Maria Souza", "course_name": "Gestão Pública"},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	require.Len(t, uploader.uploads, 1)
	up := uploader.uploads[0]
	assert.True(t, strings.HasPrefix(up.Key, "documentos/declaration/"), "key = %s", up.Key)
	assert.True(t, strings.HasSuffix(up.Key, ".pdf"))
	assert.Equal(t, "application/pdf", up.ContentType)
	assert.Equal(t, pdf, up.Body)
}

func TestDocumentGeneratorEmiteSemStorage(t *testing.T) {
	// O arquivamento é melhor esforço: o uploader sem backend falha e a
	// emissão segue normalmente.
	g := newDocGenerator(storage.NoopUploader{})

	pdf, err := g.Produce(context.Background(), document.DocStudyPlan, document.Data{
		Vars: document.VariableBag{"student_name": "Maria Souza"},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestDocumentGeneratorRejeitaTipoDesconhecido(t *testing.T) {
	g := newDocGenerator(&recordingUploader{})

	_, err := g.Produce(context.Background(), document.DocType("holograma"), document.Data{})
	assert.Error(t, err)
}
