package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OCRTimeout and CaptionTimeout are the hard per-call ceilings the vision
// model is given: a full-page OCR pass is allowed far longer than a single
// image caption.
const (
	OCRTimeout     = 600 * time.Second
	CaptionTimeout = 300 * time.Second
)

const (
	ocrPrompt = "You are a precise OCR engine. Your job is to extract every single word of text " +
		"visible on this document page. Output the text exactly as it appears, character by character. " +
		"Include: page headers, chapter titles, paragraph text, numbered lists, bold/italic text, " +
		"captions, footnotes, page numbers, and footer text. " +
		"Do NOT describe images — just output [IMAGE] where images appear. " +
		"Do NOT paraphrase or summarize. Transcribe verbatim. " +
		"Pay close attention to small text, technical terms, software names, and menu paths."

	captionPrompt = "Describe this image in detail for use in a document search system. " +
		"Include: what type of visual this is (diagram, chart, photo, schematic, etc.), " +
		"what it shows, any labels or annotations visible, key data points or values, " +
		"and the overall purpose of the image. Be factual — do not guess or invent details."
)

// OllamaVision implements Vision against Ollama's /api/generate endpoint,
// the same multimodal-generate shape as a plain chat call but keyed by an
// images array of base64-encoded bytes alongside the prompt.
type OllamaVision struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaVision(baseURL, model string) *OllamaVision {
	return &OllamaVision{baseURL: baseURL, model: model, client: &http.Client{}}
}

type ollamaGenerateReq struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Images  []string         `json:"images"`
	Stream  bool             `json:"stream"`
	Options ollamaGenOptions `json:"options"`
}

type ollamaGenOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateResp struct {
	Response string `json:"response"`
}

func (v *OllamaVision) Caption(ctx context.Context, imageBytes []byte) (string, error) {
	text, err := v.generate(ctx, CaptionTimeout, captionPrompt, imageBytes)
	if err != nil {
		return "", fmt.Errorf("vision caption: %w", err)
	}
	return text, nil
}

func (v *OllamaVision) OCR(ctx context.Context, imageBytes []byte) (string, error) {
	text, err := v.generate(ctx, OCRTimeout, ocrPrompt, imageBytes)
	if err != nil {
		return "", fmt.Errorf("vision ocr: %w", err)
	}
	return text, nil
}

func (v *OllamaVision) generate(ctx context.Context, timeout time.Duration, prompt string, imageBytes []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateReq{
		Model:   v.model,
		Prompt:  prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(imageBytes)},
		Stream:  false,
		Options: ollamaGenOptions{Temperature: 0, NumPredict: 4096},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ollamaGenerateResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}
