package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

// Institution carrega os dados institucionais usados nos cabeçalhos,
// rodapés e assinaturas dos documentos.
type Institution struct {
	Nome          string
	CNPJ          string
	Endereco      string
	Cidade        string
	Telefone      string
	Email         string
	LogoURL       string
	DiretorNome   string
	AssinaturaURL string
}

// ModuleRow é uma linha da grade curricular impressa nos documentos.
type ModuleRow struct {
	Titulo  string
	Hours   int
	Topicos []string
}

// Data reúne tudo que um template precisa para ser renderizado.
type Data struct {
	Vars        VariableBag
	Institution Institution
	Modules     []ModuleRow
	StartDate   time.Time
}

// Renderer transforma uma lista de blocos de conteúdo em um PDF A4.
type Renderer struct {
	log zerolog.Logger

	// FetchImage resolve URLs de logo e assinatura. Quando nil, um
	// cliente HTTP com timeout curto é usado. Falhas de download não
	// abortam a renderização: o bloco é pulado com um aviso no log.
	FetchImage func(ctx context.Context, url string) ([]byte, error)
}

// NewRenderer cria um renderizador com o buscador de imagens padrão.
func NewRenderer(log zerolog.Logger) *Renderer {
	return &Renderer{log: log}
}

const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	marginSide   = 15.0
	marginTop    = 15.0
	marginBottom = 18.0
	contentWidth = pageWidth - 2*marginSide
)

// Render produz o PDF. Blocos de tipo desconhecido são ignorados com
// aviso no log para que templates antigos continuem renderizando após
// mudanças no editor.
func (r *Renderer) Render(ctx context.Context, blocks []ContentBlock, data Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginSide, marginTop, marginSide)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	st := &renderState{pdf: pdf, tr: tr, data: data}

	for _, blk := range NormalizeOrder(blocks) {
		if !KnownType(blk.Type) {
			r.log.Warn().Str("tipo", string(blk.Type)).Str("bloco", blk.ID).Msg("bloco desconhecido ignorado")
			continue
		}
		if top := blk.Config.Float("margin_top", 0); top > 0 {
			pdf.SetY(pdf.GetY() + top)
		}
		r.renderBlock(ctx, st, blk)
		if bottom := blk.Config.Float("margin_bottom", 0); bottom > 0 {
			pdf.SetY(pdf.GetY() + bottom)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("document: gerar pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type renderState struct {
	pdf  *gofpdf.Fpdf
	tr   func(string) string
	data Data
}

func (r *Renderer) renderBlock(ctx context.Context, st *renderState, blk ContentBlock) {
	switch blk.Type {
	case BlockFrame:
		r.frame(st, blk.Config)
	case BlockHeader:
		r.header(ctx, st, blk.Config)
	case BlockTitle:
		r.title(st, blk.Config)
	case BlockParagraph:
		r.paragraph(st, blk.Config)
	case BlockTable:
		r.table(st, blk.Config)
	case BlockModulesTable:
		r.modulesTable(st, blk.Config)
	case BlockCronogramaTable:
		r.cronogramaTable(st, blk.Config)
	case BlockSignature:
		r.signature(ctx, st, blk.Config)
	case BlockFooter:
		r.footer(st, blk.Config)
	case BlockImage:
		r.image(ctx, st, blk.Config)
	case BlockQRCode:
		r.qrcode(st, blk.Config)
	case BlockSpacer:
		st.pdf.SetY(st.pdf.GetY() + blk.Config.Float("height", 8))
	}
}

func alignCode(a string) string {
	switch strings.ToLower(a) {
	case "center":
		return "C"
	case "right":
		return "R"
	}
	return "L"
}

// frame desenha a moldura decorativa da página. Estilos: simple,
// double, thick e dashed.
func (r *Renderer) frame(st *renderState, cfg BlockConfig) {
	pdf := st.pdf
	inset := cfg.Float("inset", 8)
	style := cfg.String("style", "simple")

	pdf.SetDrawColor(60, 60, 60)
	switch style {
	case "double":
		pdf.SetLineWidth(0.6)
		pdf.Rect(inset, inset, pageWidth-2*inset, pageHeight-2*inset, "D")
		pdf.SetLineWidth(0.2)
		pdf.Rect(inset+2, inset+2, pageWidth-2*inset-4, pageHeight-2*inset-4, "D")
	case "thick":
		pdf.SetLineWidth(1.4)
		pdf.Rect(inset, inset, pageWidth-2*inset, pageHeight-2*inset, "D")
	case "dashed":
		pdf.SetDashPattern([]float64{2, 2}, 0)
		pdf.SetLineWidth(0.4)
		pdf.Rect(inset, inset, pageWidth-2*inset, pageHeight-2*inset, "D")
		pdf.SetDashPattern([]float64{}, 0)
	default:
		pdf.SetLineWidth(0.4)
		pdf.Rect(inset, inset, pageWidth-2*inset, pageHeight-2*inset, "D")
	}
	pdf.SetLineWidth(0.2)
	pdf.SetY(marginTop)
}

// header imprime o cabeçalho institucional. Layouts: 1 logo à
// esquerda e dados à direita, 2 tudo centralizado, 3 somente dados,
// 4 faixa com linha divisória.
func (r *Renderer) header(ctx context.Context, st *renderState, cfg BlockConfig) {
	pdf, inst := st.pdf, st.data.Institution
	layout := int(cfg.Float("layout", 1))

	startY := pdf.GetY()
	textX := marginSide

	if layout == 1 && inst.LogoURL != "" {
		if r.placeImage(ctx, pdf, "header-logo", inst.LogoURL, marginSide, startY, 24) {
			textX = marginSide + 30
		}
	}

	align := "L"
	if layout == 2 {
		align = "C"
	}

	pdf.SetXY(textX, startY)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(pageWidth-textX-marginSide, 6, st.tr(inst.Nome), "", 2, align, false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if inst.CNPJ != "" {
		pdf.CellFormat(pageWidth-textX-marginSide, 4.5, st.tr("CNPJ "+inst.CNPJ), "", 2, align, false, 0, "")
	}
	line2 := strings.TrimSpace(strings.Join(nonEmpty(inst.Endereco, inst.Cidade), " - "))
	if line2 != "" {
		pdf.CellFormat(pageWidth-textX-marginSide, 4.5, st.tr(line2), "", 2, align, false, 0, "")
	}
	line3 := strings.TrimSpace(strings.Join(nonEmpty(inst.Telefone, inst.Email), " | "))
	if line3 != "" {
		pdf.CellFormat(pageWidth-textX-marginSide, 4.5, st.tr(line3), "", 2, align, false, 0, "")
	}

	endY := pdf.GetY()
	if endY < startY+24 && layout == 1 && inst.LogoURL != "" {
		endY = startY + 24
	}
	if layout == 4 {
		pdf.SetDrawColor(60, 60, 60)
		pdf.SetLineWidth(0.4)
		pdf.Line(marginSide, endY+2, pageWidth-marginSide, endY+2)
		endY += 3
	}
	pdf.SetXY(marginSide, endY+3)
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *Renderer) title(st *renderState, cfg BlockConfig) {
	pdf := st.pdf
	text := st.data.Vars.Substitute(cfg.String("text", ""))
	size := cfg.Float("font_size", 16)
	style := ""
	if cfg.Bool("bold", true) {
		style = "B"
	}
	pdf.SetFont("Helvetica", style, size)
	pdf.MultiCell(contentWidth, size*0.45, st.tr(text), "", alignCode(cfg.String("align", "center")), false)
	pdf.Ln(2)
}

func (r *Renderer) paragraph(st *renderState, cfg BlockConfig) {
	pdf := st.pdf
	text := st.data.Vars.Substitute(cfg.String("text", ""))
	size := cfg.Float("font_size", 11)
	lineH := cfg.Float("line_height", size*0.5)
	pdf.SetFont("Helvetica", "", size)
	pdf.MultiCell(contentWidth, lineH, st.tr(text), "", alignCode(cfg.String("align", "justify")), false)
	pdf.Ln(2)
}

// table imprime linhas genéricas definidas no próprio config. A
// primeira linha é tratada como cabeçalho quando header_row é true.
func (r *Renderer) table(st *renderState, cfg BlockConfig) {
	rows, ok := cfg["rows"].([]any)
	if !ok || len(rows) == 0 {
		return
	}
	pdf := st.pdf
	headerRow := cfg.Bool("header_row", true)

	for i, raw := range rows {
		cells, ok := raw.([]any)
		if !ok || len(cells) == 0 {
			continue
		}
		w := contentWidth / float64(len(cells))
		if headerRow && i == 0 {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetFillColor(235, 235, 235)
		} else {
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetFillColor(255, 255, 255)
		}
		for _, c := range cells {
			text, _ := c.(string)
			pdf.CellFormat(w, 7, st.tr(st.data.Vars.Substitute(text)), "1", 0, "L", headerRow && i == 0, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(2)
}

// modulesTable imprime a grade curricular do curso.
func (r *Renderer) modulesTable(st *renderState, cfg BlockConfig) {
	if len(st.data.Modules) == 0 {
		return
	}
	pdf := st.pdf
	showTopics := cfg.Bool("show_topics", true)

	colModule := contentWidth * 0.78
	colHours := contentWidth - colModule

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(colModule, 7, st.tr(cfg.String("module_label", "Módulo")), "1", 0, "L", true, 0, "")
	pdf.CellFormat(colHours, 7, st.tr(cfg.String("hours_label", "Carga horária")), "1", 0, "C", true, 0, "")
	pdf.Ln(-1)

	total := 0
	for _, m := range st.data.Modules {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(colModule, 6.5, st.tr(m.Titulo), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colHours, 6.5, fmt.Sprintf("%dh", m.Hours), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		if showTopics && len(m.Topicos) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			for _, t := range m.Topicos {
				pdf.CellFormat(colModule, 5.5, st.tr("  • "+t), "LR", 0, "L", false, 0, "")
				pdf.CellFormat(colHours, 5.5, "", "LR", 0, "C", false, 0, "")
				pdf.Ln(-1)
			}
			pdf.CellFormat(contentWidth, 0.1, "", "T", 1, "L", false, 0, "")
		}
		total += m.Hours
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(colModule, 7, st.tr("Carga horária total"), "1", 0, "R", false, 0, "")
	pdf.CellFormat(colHours, 7, fmt.Sprintf("%dh", total), "1", 0, "C", false, 0, "")
	pdf.Ln(4)
}

// cronogramaTable deriva um cronograma semanal da grade de módulos a
// partir da data de início.
func (r *Renderer) cronogramaTable(st *renderState, cfg BlockConfig) {
	if len(st.data.Modules) == 0 {
		return
	}
	pdf := st.pdf
	start := st.data.StartDate
	if start.IsZero() {
		start = time.Now()
	}

	colWeek := contentWidth * 0.22
	colPeriod := contentWidth * 0.30
	colModule := contentWidth - colWeek - colPeriod

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(colWeek, 7, st.tr("Semana"), "1", 0, "C", true, 0, "")
	pdf.CellFormat(colPeriod, 7, st.tr("Período"), "1", 0, "C", true, 0, "")
	pdf.CellFormat(colModule, 7, st.tr("Conteúdo"), "1", 0, "L", true, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for i, m := range st.data.Modules {
		weekStart := start.AddDate(0, 0, i*7)
		weekEnd := weekStart.AddDate(0, 0, 6)
		period := weekStart.Format("02/01") + " a " + weekEnd.Format("02/01/2006")
		pdf.CellFormat(colWeek, 6.5, fmt.Sprintf("Semana %d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colPeriod, 6.5, period, "1", 0, "C", false, 0, "")
		pdf.CellFormat(colModule, 6.5, st.tr(m.Titulo), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

// signature imprime a linha de assinatura do diretor, com a imagem da
// assinatura quando configurada.
func (r *Renderer) signature(ctx context.Context, st *renderState, cfg BlockConfig) {
	pdf, inst := st.pdf, st.data.Institution
	name := cfg.String("name", inst.DiretorNome)
	role := cfg.String("role", "Diretor(a)")
	lineW := cfg.Float("line_width", 70)
	x := marginSide + (contentWidth-lineW)/2

	if inst.AssinaturaURL != "" {
		r.placeImage(ctx, pdf, "signature-img", inst.AssinaturaURL, marginSide+(contentWidth-40)/2, pdf.GetY(), 14)
		pdf.SetY(pdf.GetY() + 15)
	} else {
		pdf.SetY(pdf.GetY() + 12)
	}

	pdf.SetDrawColor(30, 30, 30)
	pdf.SetLineWidth(0.3)
	pdf.Line(x, pdf.GetY(), x+lineW, pdf.GetY())
	pdf.SetY(pdf.GetY() + 1.5)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentWidth, 5, st.tr(name), "", 2, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentWidth, 4.5, st.tr(role), "", 2, "C", false, 0, "")
	pdf.Ln(2)
}

// footer imprime o rodapé fixo no pé da página.
func (r *Renderer) footer(st *renderState, cfg BlockConfig) {
	pdf, inst := st.pdf, st.data.Institution
	text := cfg.String("text", "")
	if text == "" {
		parts := nonEmpty(inst.Nome, "CNPJ "+inst.CNPJ, inst.Endereco, inst.Cidade)
		if inst.CNPJ == "" && len(parts) > 1 {
			parts = nonEmpty(inst.Nome, inst.Endereco, inst.Cidade)
		}
		text = strings.Join(parts, " | ")
	}
	pdf.SetY(pageHeight - marginBottom + 2)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(contentWidth, 4, st.tr(st.data.Vars.Substitute(text)), "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// image posiciona uma imagem institucional ou externa no fluxo.
func (r *Renderer) image(ctx context.Context, st *renderState, cfg BlockConfig) {
	pdf, inst := st.pdf, st.data.Institution
	var url string
	switch cfg.String("source", "url") {
	case "logo":
		url = inst.LogoURL
	case "director_signature":
		url = inst.AssinaturaURL
	default:
		url = cfg.String("url", "")
	}
	if url == "" {
		return
	}
	h := cfg.Float("height", 25)
	w := cfg.Float("width", 0)
	x := marginSide
	switch alignCode(cfg.String("align", "center")) {
	case "C":
		if w > 0 {
			x = marginSide + (contentWidth-w)/2
		} else {
			x = marginSide + contentWidth/2 - h/2
		}
	case "R":
		if w > 0 {
			x = pageWidth - marginSide - w
		} else {
			x = pageWidth - marginSide - h
		}
	}
	if r.placeImage(ctx, pdf, "block-img-"+url, url, x, pdf.GetY(), h) {
		pdf.SetY(pdf.GetY() + h + 3)
	}
}

// qrcode gera e posiciona o QR de verificação. O conteúdo padrão é o
// token verification_url do saco de variáveis.
func (r *Renderer) qrcode(st *renderState, cfg BlockConfig) {
	pdf := st.pdf
	content := st.data.Vars.Substitute(cfg.String("content", "{{verification_url}}"))
	if content == "" {
		return
	}
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		r.log.Warn().Err(err).Msg("falha ao gerar qrcode")
		return
	}
	size := cfg.Float("size", 30)
	x := marginSide
	switch alignCode(cfg.String("align", "center")) {
	case "C":
		x = marginSide + (contentWidth-size)/2
	case "R":
		x = pageWidth - marginSide - size
	}
	name := "qrcode-" + content
	opts := gofpdf.ImageOptions{ImageType: "png"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	pdf.ImageOptions(name, x, pdf.GetY(), size, size, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + size + 2)
	if label := cfg.String("label", ""); label != "" {
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(contentWidth, 4, st.tr(st.data.Vars.Substitute(label)), "", 2, "C", false, 0, "")
	}
}

// placeImage baixa e posiciona uma imagem com altura fixa. Retorna
// false quando o download ou o registro falham.
func (r *Renderer) placeImage(ctx context.Context, pdf *gofpdf.Fpdf, name, url string, x, y, h float64) bool {
	raw, err := r.fetch(ctx, url)
	if err != nil {
		r.log.Warn().Err(err).Str("url", url).Msg("imagem indisponível, bloco pulado")
		return false
	}
	imgType := detectImageType(raw)
	if imgType == "" {
		r.log.Warn().Str("url", url).Msg("formato de imagem não suportado")
		return false
	}
	opts := gofpdf.ImageOptions{ImageType: imgType}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(raw))
	if pdf.Err() {
		r.log.Warn().Str("url", url).Msg("falha ao registrar imagem")
		pdf.ClearError()
		return false
	}
	w := h * info.Width() / info.Height()
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return true
}

func detectImageType(raw []byte) string {
	switch {
	case len(raw) > 8 && bytes.HasPrefix(raw, []byte("\x89PNG")):
		return "png"
	case len(raw) > 3 && bytes.HasPrefix(raw, []byte("\xff\xd8\xff")):
		return "jpg"
	case len(raw) > 6 && bytes.HasPrefix(raw, []byte("GIF8")):
		return "gif"
	}
	return ""
}

func (r *Renderer) fetch(ctx context.Context, url string) ([]byte, error) {
	if r.FetchImage != nil {
		return r.FetchImage(ctx, url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document: imagem retornou status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 5<<20))
}
