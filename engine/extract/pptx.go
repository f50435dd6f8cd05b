package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/embed"
)

// PPTXExtractor extracts text, tables, speaker notes, and embedded images
// from a .pptx file, slide by slide. A .pptx is a zip of OOXML parts with
// no established Go parsing library, so this reads the zip and XML with
// the standard library directly. Embedded pictures are captioned through
// Vision and folded into the slide text as a delimited block.
type PPTXExtractor struct {
	Vision embed.Vision
}

func NewPPTXExtractor(vision embed.Vision) *PPTXExtractor { return &PPTXExtractor{Vision: vision} }

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (e *PPTXExtractor) Extract(ctx context.Context, filePath string, _ domain.DocumentKind) ([]domain.Page, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	type indexedSlide struct {
		num  int
		name string
	}
	var slides []indexedSlide
	for name := range parts {
		if m := slidePartPattern.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, indexedSlide{num: n, name: name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]domain.Page, 0, len(slides))
	for _, s := range slides {
		page, err := e.extractSlide(ctx, parts, s.name, s.num)
		if err != nil {
			slog.Warn("pptx: slide extraction failed, skipping slide", "slide", s.num, "error", err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (e *PPTXExtractor) extractSlide(ctx context.Context, parts map[string]*zip.File, slideName string, slideNum int) (domain.Page, error) {
	var sld slideXML
	if err := readXML(parts, slideName, &sld); err != nil {
		return domain.Page{}, fmt.Errorf("parse slide xml: %w", err)
	}

	var blocks []string

	if notes, ok := e.readSlideNotes(parts, slideNum); ok {
		blocks = append(blocks, "--- Speaker Notes ---\n"+notes+"\n--- End Notes ---")
	}

	var tables []domain.Table
	tree := sld.CSld.SpTree

	for _, sp := range tree.Sp {
		if text := shapeText(sp.TxBody); text != "" {
			blocks = append(blocks, text)
		}
	}

	for _, gf := range tree.GraphicFrame {
		tbl := gf.Graphic.GraphicData.Tbl
		if tbl == nil {
			continue
		}
		md, rows, cols := renderPPTXTable(tbl)
		if md == "" {
			continue
		}
		tables = append(tables, domain.Table{Markdown: md, Rows: rows, Cols: cols})
		blocks = append(blocks, "--- Table Data ---\n"+md+"\n--- End Table ---")
	}

	relsName := fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", slideNum)
	images := e.extractSlideImages(ctx, parts, relsName, tree.Pic)
	for _, img := range images {
		if img.Caption == "" {
			continue
		}
		blocks = append(blocks, "--- Image Content ---\n"+img.Caption+"\n--- End Image ---")
	}

	return domain.Page{
		PageNumber:       slideNum,
		Text:             strings.Join(blocks, "\n\n"),
		Tables:           tables,
		Images:           images,
		ExtractionMethod: domain.MethodStructural,
	}, nil
}

func (e *PPTXExtractor) readSlideNotes(parts map[string]*zip.File, slideNum int) (string, bool) {
	name := fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", slideNum)
	if _, ok := parts[name]; !ok {
		return "", false
	}
	var notes slideXML
	if err := readXML(parts, name, &notes); err != nil {
		return "", false
	}
	var runs []string
	for _, sp := range notes.CSld.SpTree.Sp {
		if text := shapeText(sp.TxBody); text != "" {
			runs = append(runs, text)
		}
	}
	text := strings.TrimSpace(strings.Join(runs, "\n"))
	return text, text != ""
}

func (e *PPTXExtractor) extractSlideImages(ctx context.Context, parts map[string]*zip.File, relsName string, pics []pptxPic) []domain.Image {
	if len(pics) == 0 {
		return nil
	}
	rels, ok := parts[relsName]
	if !ok {
		return nil
	}
	var relsXML relationshipsXML
	if err := readXMLFile(rels, &relsXML); err != nil {
		return nil
	}
	targets := make(map[string]string, len(relsXML.Relationship))
	for _, r := range relsXML.Relationship {
		targets[r.ID] = r.Target
	}

	var images []domain.Image
	for _, p := range pics {
		rID := p.BlipFill.Blip.Embed
		target, ok := targets[rID]
		if !ok {
			continue
		}
		mediaPath := path.Clean(path.Join("ppt/slides", target))
		f, ok := parts[mediaPath]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			continue
		}
		if cfg.Width < MinImageDim || cfg.Height < MinImageDim {
			continue
		}

		img := domain.Image{Bytes: data, Width: cfg.Width, Height: cfg.Height}
		if e.Vision != nil {
			if caption, err := e.Vision.Caption(ctx, data); err != nil {
				slog.Debug("pptx: image caption failed", "rel", rID, "error", err)
			} else {
				img.Caption = caption
			}
		}
		images = append(images, img)
	}
	return images
}

func shapeText(tb *pptxTxBody) string {
	if tb == nil {
		return ""
	}
	var paras []string
	for _, p := range tb.P {
		var runs []string
		for _, r := range p.R {
			runs = append(runs, r.T)
		}
		if line := strings.TrimSpace(strings.Join(runs, "")); line != "" {
			paras = append(paras, line)
		}
	}
	return strings.Join(paras, "\n")
}

func renderPPTXTable(tbl *pptxTbl) (markdown string, rows, cols int) {
	var grid [][]string
	for _, tr := range tbl.Tr {
		var row []string
		for _, tc := range tr.Tc {
			cell := strings.ReplaceAll(shapeText(&tc.TxBody), "\n", " ")
			row = append(row, strings.TrimSpace(cell))
		}
		if len(row) > cols {
			cols = len(row)
		}
		grid = append(grid, row)
	}
	if len(grid) == 0 {
		return "", 0, 0
	}

	var b strings.Builder
	for i, row := range grid {
		for len(row) < cols {
			row = append(row, "")
		}
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			sep := make([]string, cols)
			for j := range sep {
				sep[j] = "---"
			}
			b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), len(grid), cols
}

func readXML(parts map[string]*zip.File, name string, v any) error {
	f, ok := parts[name]
	if !ok {
		return fmt.Errorf("part %s not found", name)
	}
	return readXMLFile(f, v)
}

func readXMLFile(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// The struct tags below deliberately omit namespace prefixes (a:, p:, r:) —
// encoding/xml matches elements and attributes by local name alone when a
// tag carries no namespace, which is sufficient to read DrawingML/
// PresentationML without declaring OOXML's namespace IRIs.

type slideXML struct {
	CSld struct {
		SpTree struct {
			Sp           []pptxShape   `xml:"sp"`
			GraphicFrame []pptxGraphic `xml:"graphicFrame"`
			Pic          []pptxPic     `xml:"pic"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type pptxShape struct {
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxTxBody struct {
	P []pptxPara `xml:"p"`
}

type pptxPara struct {
	R []pptxRun `xml:"r"`
}

type pptxRun struct {
	T string `xml:"t"`
}

type pptxGraphic struct {
	Graphic struct {
		GraphicData struct {
			Tbl *pptxTbl `xml:"tbl"`
		} `xml:"graphicData"`
	} `xml:"graphic"`
}

type pptxTbl struct {
	Tr []pptxTr `xml:"tr"`
}

type pptxTr struct {
	Tc []pptxTc `xml:"tc"`
}

type pptxTc struct {
	TxBody pptxTxBody `xml:"txBody"`
}

type pptxPic struct {
	BlipFill struct {
		Blip struct {
			Embed string `xml:"embed,attr"`
		} `xml:"blip"`
	} `xml:"blipFill"`
}

type relationshipsXML struct {
	Relationship []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}
