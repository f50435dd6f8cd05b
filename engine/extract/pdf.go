package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/embed"
)

// ocrMinChars and cidPlaceholderThreshold are the structural-text rejection
// thresholds: a page's stripped text shorter than ocrMinChars, or carrying
// more than cidPlaceholderThreshold unmapped-glyph placeholders with a
// still-short residual, is substituted with a vision OCR pass.
const (
	ocrMinChars             = 50
	cidPlaceholderThreshold = 5
)

var cidPlaceholderPattern = regexp.MustCompile(`\(cid:\d+\)`)

// PDFExtractor extracts text, heuristically-detected tables, and embedded
// images from a PDF, page by page, using ledongthuc/pdf's visual-order
// text extraction and XObject image extraction. Table rendering is a
// line-alignment heuristic rather than a true table grid, since no Go PDF
// library exposes table geometry. When structural text
// extraction comes back too thin, pages are rasterized with go-fitz and
// re-read through Vision's OCR call.
type PDFExtractor struct {
	Vision embed.Vision
}

func NewPDFExtractor(vision embed.Vision) *PDFExtractor {
	return &PDFExtractor{Vision: vision}
}

var tableRowPattern = regexp.MustCompile(`\S+(?:\s{2,}|\t)\S+(?:(?:\s{2,}|\t)\S+)+`)

func (e *PDFExtractor) Extract(ctx context.Context, path string, _ domain.DocumentKind) ([]domain.Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var fitzDoc *fitz.Document
	defer func() {
		if fitzDoc != nil {
			fitzDoc.Close()
		}
	}()
	ensureFitz := func() (*fitz.Document, error) {
		if fitzDoc != nil {
			return fitzDoc, nil
		}
		d, err := fitz.New(path)
		if err != nil {
			return nil, err
		}
		fitzDoc = d
		return fitzDoc, nil
	}

	total := reader.NumPage()
	pages := make([]domain.Page, 0, total)

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			slog.Warn("pdf: page text extraction failed, skipping page", "page", i, "error", err)
			continue
		}

		tables, prose := splitTables(text, i)
		images := extractPageImages(ctx, e.Vision, page, i)
		method := domain.MethodStructural

		if e.Vision != nil && needsVisionOCR(prose) {
			ocrText, err := renderAndOCR(ctx, e.Vision, ensureFitz, i)
			if err != nil {
				slog.Warn("pdf: vision ocr fallback failed, keeping structural text", "page", i, "error", err)
			} else {
				prose = ocrText
				tables = nil
				method = domain.MethodVisionOCR
			}
		}

		pages = append(pages, domain.Page{
			PageNumber:       i,
			Text:             prose,
			Tables:           tables,
			Images:           images,
			ExtractionMethod: method,
		})
	}

	return pages, nil
}

// needsVisionOCR decides whether structural text is too thin to trust: a
// stripped length under ocrMinChars, or more than cidPlaceholderThreshold
// unmapped-glyph (cid:N) placeholders whose removal still leaves the
// residual text under ocrMinChars.
func needsVisionOCR(text string) bool {
	stripped := strings.TrimSpace(text)
	if len(stripped) < ocrMinChars {
		return true
	}

	placeholders := cidPlaceholderPattern.FindAllString(stripped, -1)
	if len(placeholders) <= cidPlaceholderThreshold {
		return false
	}

	residual := strings.TrimSpace(cidPlaceholderPattern.ReplaceAllString(stripped, ""))
	return len(residual) < ocrMinChars
}

// renderAndOCR rasterizes a single page to PNG via go-fitz and transcribes it
// with the vision model.
func renderAndOCR(ctx context.Context, vision embed.Vision, ensureFitz func() (*fitz.Document, error), pageNum int) (string, error) {
	doc, err := ensureFitz()
	if err != nil {
		return "", fmt.Errorf("rasterize: %w", err)
	}
	img, err := doc.Image(pageNum - 1)
	if err != nil {
		return "", fmt.Errorf("rasterize page %d: %w", pageNum, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page %d: %w", pageNum, err)
	}
	return vision.OCR(ctx, buf.Bytes())
}

// extractPageTextOrdered groups Content() text elements into visual lines by
// Y proximity, then sorts lines top-to-bottom — GetPlainText alone follows
// PDF object order, which can put headings after the body they label.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0
	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// splitTables pulls out runs of 2+ consecutive column-aligned lines as
// markdown tables, isolated from plain whitespace alignment since that's
// all a pure-text extraction library can see.
func splitTables(text string, pageNum int) ([]domain.Table, string) {
	lines := strings.Split(text, "\n")
	var tables []domain.Table
	var prose []string
	var run []string

	flush := func() {
		if len(run) < 2 {
			prose = append(prose, run...)
			run = nil
			return
		}
		md, cols := renderTableMarkdown(run)
		tables = append(tables, domain.Table{Markdown: md, Rows: len(run), Cols: cols})
		header := fmt.Sprintf("\n\n[TABLE %d - %d rows x %d columns]\n", len(tables), len(run), cols)
		prose = append(prose, header+md)
		run = nil
	}

	for _, line := range lines {
		if tableRowPattern.MatchString(line) {
			run = append(run, line)
			continue
		}
		flush()
		prose = append(prose, line)
	}
	flush()

	_ = pageNum
	return tables, strings.Join(prose, "\n")
}

func renderTableMarkdown(rows []string) (string, int) {
	splitRow := regexp.MustCompile(`\s{2,}|\t`)
	parsed := make([][]string, len(rows))
	cols := 0
	for i, r := range rows {
		cells := splitRow.Split(strings.TrimSpace(r), -1)
		parsed[i] = cells
		if len(cells) > cols {
			cols = len(cells)
		}
	}

	var b strings.Builder
	for i, cells := range parsed {
		for len(cells) < cols {
			cells = append(cells, "")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		if i == 0 {
			sep := make([]string, cols)
			for j := range sep {
				sep[j] = "---"
			}
			b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), cols
}

// extractPageImages extracts raster images from a page's XObject resources,
// skipping masks and anything smaller than MinImageDim in either dimension,
// and captions each surviving image through Vision when one is configured.
// Filter types this package does not re-encode are skipped: DCTDecode
// JPEGs require reading the raw, unfiltered stream bytes, which the
// ledongthuc/pdf API does not expose without reflection into unexported
// fields — not worth the fragility here; those images are dropped with a
// debug log instead.
func extractPageImages(ctx context.Context, vision embed.Vision, page pdf.Page, pageNum int) []domain.Image {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var images []domain.Image
	for _, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" || xobj.Key("ImageMask").Bool() {
			continue
		}

		width := int(xobj.Key("Width").Int64())
		height := int(xobj.Key("Height").Int64())
		if width < MinImageDim || height < MinImageDim {
			continue
		}

		filter := xobj.Key("Filter").Name()
		if filter != "FlateDecode" && filter != "" {
			slog.Debug("pdf: unsupported image filter, skipping", "page", pageNum, "name", name, "filter", filter)
			continue
		}

		data, err := readImageStream(xobj)
		if err != nil {
			slog.Debug("pdf: failed to read image stream", "page", pageNum, "name", name, "error", err)
			continue
		}

		img := domain.Image{Bytes: data, Width: width, Height: height}
		if vision != nil {
			if caption, err := vision.Caption(ctx, data); err != nil {
				slog.Debug("pdf: image caption failed", "page", pageNum, "name", name, "error", err)
			} else {
				img.Caption = caption
			}
		}
		images = append(images, img)
	}
	return images
}

func readImageStream(xobj pdf.Value) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading image stream: %v", r)
		}
	}()
	rc := xobj.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}
