// Package chunk implements the Chunker named in spec §4.2: it turns a
// slice of domain.Page into domain.Chunk records, keeping tables intact,
// treating a PPTX slide as one semantic unit where it reasonably fits, and
// falling back to sliding-window word chunking everywhere else.
package chunk

import (
	"regexp"
	"strings"

	"github.com/brightloom-labs/docrag/engine/domain"
)

const (
	// DefaultChunkSize is the target words per chunk (spec §4.2).
	DefaultChunkSize = 300
	// DefaultOverlap is the word overlap between consecutive chunks.
	DefaultOverlap = 50
	// SlideSizeFactor allows a PPTX slide up to 1.5x chunk size to stay a
	// single chunk before falling back to standard chunking.
	SlideSizeFactor = 1.5
)

// tableMarkerPattern recognizes a table block: a marker line ("[TABLE N ...]"
// or "### Table N ...") immediately followed by a markdown table, running
// until a blank line not followed by another "|" row or end of text.
var tableMarkerPattern = regexp.MustCompile(`\n*(?:\[TABLE \d+[^\]]*\]|### Table \d+[^\n]*)\n\|[^\n]+\|(?:\n\n?\|[^\n]*)*`)

var sectionHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#{1,3}\s+(.+)$`),
	regexp.MustCompile(`^\d+\.?\s+[A-Z][A-Za-z\s]+$`),
	regexp.MustCompile(`^[A-Z][A-Z\s]+:?\s*$`),
	regexp.MustCompile(`^(?:Test|Report|Section|Chapter)\s+\d+[:.\s].*$`),
}

// Options configures the Chunker; zero value uses the defaults.
type Options struct {
	ChunkSize int
	Overlap   int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	return o
}

// Chunker splits extracted pages into retrieval-sized chunks.
type Chunker struct {
	opts Options
}

func New(opts Options) *Chunker {
	return &Chunker{opts: opts.withDefaults()}
}

// ChunkPages chunks every page of a document, format-aware: a PPTX slide
// under 1.5x chunk size stays a single chunk, a page with table markers is
// split around its tables (which are never themselves split), and anything
// else is chunked by sliding word-count window.
func (c *Chunker) ChunkPages(pages []domain.Page, isSlideDeck bool) []domain.Chunk {
	var out []domain.Chunk
	for _, page := range pages {
		out = append(out, c.chunkPage(page, isSlideDeck)...)
	}
	return out
}

func (c *Chunker) chunkPage(page domain.Page, isSlideDeck bool) []domain.Chunk {
	text := page.Text
	var out []domain.Chunk

	switch {
	case isSlideDeck && wordCount(text) <= int(float64(c.opts.ChunkSize)*SlideSizeFactor):
		if strings.TrimSpace(text) != "" {
			out = []domain.Chunk{{
				Text:             strings.TrimSpace(text),
				Type:             domain.ChunkSlide,
				PageNumber:       page.PageNumber,
				ExtractionMethod: page.ExtractionMethod,
			}}
		}
		// Oversized slides fall through to the cases below.
	case hasTableMarkers(text):
		out = c.chunkWithTables(text, page)
	default:
		out = c.ChunkWithSections(page)
	}

	return append(out, c.imageCaptionChunks(page)...)
}

// imageCaptionChunks turns every captioned image on a page into its own
// image-caption chunk, tagged with the page number it came from. Rerank
// exempts this chunk type; uncaptioned images produce nothing.
func (c *Chunker) imageCaptionChunks(page domain.Page) []domain.Chunk {
	var out []domain.Chunk
	for _, img := range page.Images {
		if strings.TrimSpace(img.Caption) == "" {
			continue
		}
		out = append(out, domain.Chunk{
			Text:             img.Caption,
			Type:             domain.ChunkImageCaption,
			PageNumber:       page.PageNumber,
			ExtractionMethod: page.ExtractionMethod,
		})
	}
	return out
}

func hasTableMarkers(text string) bool {
	return strings.Contains(text, "[TABLE") ||
		strings.Contains(text, "### Table") ||
		strings.Contains(text, "--- Table Data ---")
}

// chunkWithTables splits around table markers, keeping each table as one
// chunk and sliding-window-chunking the prose in between.
func (c *Chunker) chunkWithTables(text string, page domain.Page) []domain.Chunk {
	matches := tableMarkerPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return c.textChunks(text, page, domain.ChunkProse, "")
	}

	var out []domain.Chunk
	pos := 0
	for _, m := range matches {
		if prose := strings.TrimSpace(text[pos:m[0]]); prose != "" {
			out = append(out, c.textChunks(prose, page, domain.ChunkProse, "")...)
		}
		tableText := strings.TrimSpace(text[m[0]:m[1]])
		if tableText != "" {
			out = append(out, domain.Chunk{
				Text:             tableText,
				Type:             domain.ChunkTable,
				PageNumber:       page.PageNumber,
				ExtractionMethod: page.ExtractionMethod,
			})
		}
		pos = m[1]
	}
	if prose := strings.TrimSpace(text[pos:]); prose != "" {
		out = append(out, c.textChunks(prose, page, domain.ChunkProse, "")...)
	}
	return out
}

// textChunks slides a word-count window of ChunkSize words, stepping by
// ChunkSize-Overlap words over the raw word stream: normalize whitespace,
// then step words directly rather than group by sentence first.
func (c *Chunker) textChunks(text string, page domain.Page, typ domain.ChunkType, section string) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.opts.ChunkSize - c.opts.Overlap
	if step <= 0 {
		step = c.opts.ChunkSize
	}

	var out []domain.Chunk
	for i := 0; i < len(words); i += step {
		end := i + c.opts.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunkWords := words[i:end]
		if len(chunkWords) == 0 {
			break
		}
		out = append(out, domain.Chunk{
			Text:             strings.Join(chunkWords, " "),
			Type:             typ,
			PageNumber:       page.PageNumber,
			ExtractionMethod: page.ExtractionMethod,
			Metadata:         domain.ChunkMetadata{Section: section},
		})
		if end == len(words) {
			break
		}
	}
	return out
}

// Section is a header-delimited span of a page's text, used by the
// section-aware chunking variant.
type Section struct {
	Header string
	Text   string
}

// SplitBySections breaks page text into sections by common header patterns
// (markdown headers, numbered sections, ALL CAPS headers, "Test N"/
// "Section N" phrasing) — used when the caller wants section names carried
// on chunk metadata instead of plain prose chunking.
func SplitBySections(text string) []Section {
	var sections []Section
	current := Section{Header: "Introduction"}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isSectionHeader(trimmed) {
			if strings.TrimSpace(current.Text) != "" {
				sections = append(sections, current)
			}
			current = Section{Header: trimmed}
			continue
		}
		current.Text += line + "\n"
	}
	if strings.TrimSpace(current.Text) != "" {
		sections = append(sections, current)
	}
	return sections
}

func isSectionHeader(line string) bool {
	if len(line) <= 3 {
		return false
	}
	for _, p := range sectionHeaderPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// ChunkWithSections chunks a page section-aware, tagging every resulting
// chunk with the section header it fell under.
func (c *Chunker) ChunkWithSections(page domain.Page) []domain.Chunk {
	var out []domain.Chunk
	for _, section := range SplitBySections(page.Text) {
		out = append(out, c.textChunks(section.Text, page, domain.ChunkProse, section.Header)...)
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
