package extract

import (
	"strings"
	"testing"
)

func TestNeedsVisionOCR_ShortTextTriggersFallback(t *testing.T) {
	if !needsVisionOCR("  \n  ") {
		t.Error("want fallback for near-empty text")
	}
	if !needsVisionOCR("a few words") {
		t.Error("want fallback for text under the threshold")
	}
}

func TestNeedsVisionOCR_SufficientStructuralTextSkipsFallback(t *testing.T) {
	text := strings.Repeat("word ", 40)
	if needsVisionOCR(text) {
		t.Error("want no fallback for structural text well over the threshold")
	}
}

func TestNeedsVisionOCR_ManyPlaceholdersWithThinResidualTriggersFallback(t *testing.T) {
	var placeholders []string
	for i := 0; i < 8; i++ {
		placeholders = append(placeholders, "(cid:12)")
	}
	text := strings.Join(placeholders, " ") + " short"
	if !needsVisionOCR(text) {
		t.Error("want fallback when placeholders dominate and residual text is thin")
	}
}

func TestNeedsVisionOCR_FewPlaceholdersWithGoodResidualSkipsFallback(t *testing.T) {
	text := "(cid:12) (cid:13) " + strings.Repeat("readable text ", 20)
	if needsVisionOCR(text) {
		t.Error("want no fallback when placeholders are below the threshold")
	}
}
