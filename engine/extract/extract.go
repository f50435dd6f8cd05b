// Package extract implements the Extractor named in spec §4.1: it turns an
// uploaded PDF or PPTX file into an ordered slice of domain.Page, each
// carrying plain text, any tables rendered to markdown, and any embedded
// images worth captioning. Legacy .ppt is not handled: Dispatcher rejects
// it as an unsupported kind, and nothing in this repository converts a
// .ppt file to PDF before extraction.
package extract

import (
	"context"
	"fmt"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/embed"
)

// MinImageDim is the smallest embedded-image dimension worth extracting;
// below this, images are almost always bullets or decorative glyphs (spec
// §4.1 table/image thresholds).
const MinImageDim = 100

// Extractor turns a document file on disk into pages.
type Extractor interface {
	Extract(ctx context.Context, path string, kind domain.DocumentKind) ([]domain.Page, error)
}

// Dispatcher routes to the PDF or PPTX extractor by declared kind, the way
// a single Extract entry point is expected by the ingestion worker (spec
// §4.9) regardless of file type.
type Dispatcher struct {
	PDF  *PDFExtractor
	PPTX *PPTXExtractor
}

// NewDispatcher wires vision into both extractors; pass nil to run without
// vision OCR fallback or image captioning.
func NewDispatcher(vision embed.Vision) *Dispatcher {
	return &Dispatcher{PDF: NewPDFExtractor(vision), PPTX: NewPPTXExtractor(vision)}
}

func (d *Dispatcher) Extract(ctx context.Context, path string, kind domain.DocumentKind) ([]domain.Page, error) {
	switch kind {
	case domain.KindPDF:
		return d.PDF.Extract(ctx, path, kind)
	case domain.KindPPTX:
		return d.PPTX.Extract(ctx, path, kind)
	default:
		return nil, domain.NewField(domain.KindInputInvalid, "kind", string(kind),
			fmt.Errorf("extract: unsupported document kind %q", kind))
	}
}
