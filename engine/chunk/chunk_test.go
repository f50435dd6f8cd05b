package chunk

import (
	"strings"
	"testing"

	"github.com/brightloom-labs/docrag/engine/domain"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}

func TestChunkPages_SlideKeptWhole(t *testing.T) {
	c := New(Options{})
	pages := []domain.Page{{PageNumber: 1, Text: words(200), ExtractionMethod: domain.MethodStructural}}

	chunks := c.ChunkPages(pages, true)

	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Type != domain.ChunkSlide {
		t.Errorf("want slide chunk type, got %s", chunks[0].Type)
	}
}

func TestChunkPages_OversizedSlideFallsBackToStandardChunking(t *testing.T) {
	c := New(Options{ChunkSize: 300, Overlap: 50})
	pages := []domain.Page{{PageNumber: 1, Text: words(1000)}}

	chunks := c.ChunkPages(pages, true)

	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks for oversized slide, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.Type != domain.ChunkProse {
			t.Errorf("want prose chunk type for fallback, got %s", ch.Type)
		}
	}
}

func TestChunkPages_TableNeverSplit(t *testing.T) {
	c := New(Options{ChunkSize: 50, Overlap: 10})
	table := "[TABLE 1 - 2 rows x 2 columns]\n| a | b |\n| --- | --- |\n| 1 | 2 |"
	text := words(80) + "\n\n" + table + "\n\n" + words(80)
	pages := []domain.Page{{PageNumber: 3, Text: text}}

	chunks := c.ChunkPages(pages, false)

	var tableChunks []domain.Chunk
	for _, ch := range chunks {
		if ch.Type == domain.ChunkTable {
			tableChunks = append(tableChunks, ch)
		}
	}
	if len(tableChunks) != 1 {
		t.Fatalf("want exactly 1 table chunk, got %d", len(tableChunks))
	}
	if !strings.Contains(tableChunks[0].Text, "| 1 | 2 |") {
		t.Errorf("table chunk missing row data: %q", tableChunks[0].Text)
	}
	for _, ch := range chunks {
		if ch.PageNumber != 3 {
			t.Errorf("chunk page number = %d, want 3", ch.PageNumber)
		}
	}
}

func TestChunkPages_SlidingWindowOverlap(t *testing.T) {
	c := New(Options{ChunkSize: 10, Overlap: 3})
	pages := []domain.Page{{PageNumber: 1, Text: words(25)}}

	chunks := c.ChunkPages(pages, false)

	if len(chunks) < 3 {
		t.Fatalf("want at least 3 chunks for 25 words / step 7, got %d", len(chunks))
	}
	for _, ch := range chunks {
		wc := len(strings.Fields(ch.Text))
		if wc > 10 {
			t.Errorf("chunk exceeds chunk size: %d words", wc)
		}
	}
}

func TestChunkPages_CaptionedImageProducesImageCaptionChunk(t *testing.T) {
	c := New(Options{ChunkSize: 50, Overlap: 10})
	pages := []domain.Page{{
		PageNumber: 4,
		Text:       words(20),
		Images:     []domain.Image{{Width: 200, Height: 200, Caption: "a brake torque chart"}},
	}}

	chunks := c.ChunkPages(pages, false)

	var imageChunks []domain.Chunk
	for _, ch := range chunks {
		if ch.Type == domain.ChunkImageCaption {
			imageChunks = append(imageChunks, ch)
		}
	}
	if len(imageChunks) != 1 {
		t.Fatalf("want exactly 1 image-caption chunk, got %d", len(imageChunks))
	}
	if imageChunks[0].Text != "a brake torque chart" {
		t.Errorf("image chunk text = %q", imageChunks[0].Text)
	}
	if imageChunks[0].PageNumber != 4 {
		t.Errorf("image chunk page number = %d, want 4", imageChunks[0].PageNumber)
	}
}

func TestChunkPages_UncaptionedImageProducesNoChunk(t *testing.T) {
	c := New(Options{ChunkSize: 50, Overlap: 10})
	pages := []domain.Page{{
		PageNumber: 1,
		Text:       words(20),
		Images:     []domain.Image{{Width: 200, Height: 200}},
	}}

	chunks := c.ChunkPages(pages, false)

	for _, ch := range chunks {
		if ch.Type == domain.ChunkImageCaption {
			t.Errorf("did not expect an image-caption chunk for an uncaptioned image")
		}
	}
}

func TestSplitBySections(t *testing.T) {
	text := "## Introduction\nsome text\n## Test Results\nmore text\nand more"

	sections := SplitBySections(text)

	if len(sections) != 2 {
		t.Fatalf("want 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Header != "## Introduction" {
		t.Errorf("section 0 header = %q", sections[0].Header)
	}
	if sections[1].Header != "## Test Results" {
		t.Errorf("section 1 header = %q", sections[1].Header)
	}
}
