// Package gemini wraps Google's multimodal Gemini API as a secondary
// watermark/screenshot probe: the analysis API (the remote forensic service,
// spec §6) supplies the primary DetectorSignals, but it has no view into
// generator-specific visible watermarks Google's own model was trained to
// recognize. Worker calls this probe alongside the analysis API and merges
// its verdict into signals.VisualWatermark before fusion (SPEC_FULL.md §6.4).
// Adapted from the teacher's math-OCR Gemini client — same request/response
// shape, new system prompt and output schema.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"imageverify/api/internal/util"
)

type Probe struct {
	APIKey string
	Model  string
	httpc  *http.Client
}

func New(key, model string) *Probe {
	return &Probe{
		APIKey: key,
		Model:  model,
		httpc:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Result is the probe's structured output — a visible-watermark finding and
// a screenshot-chrome finding, both optional.
type Result struct {
	WatermarkGenerator   string  `json:"watermarkGenerator"`
	WatermarkText        string  `json:"watermarkText"`
	WatermarkLocation    string  `json:"watermarkLocation"`
	WatermarkConfidence  float64 `json:"watermarkConfidence"`
	IsScreenshot         bool    `json:"isScreenshot"`
	ScreenshotConfidence float64 `json:"screenshotConfidence"`
}

func (p *Probe) Analyze(ctx context.Context, image []byte) (Result, error) {
	if p.APIKey == "" {
		return Result{}, fmt.Errorf("GEMINI_API_KEY is empty")
	}
	model := p.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	mime := util.SniffMimeHTTP(image)
	b64 := base64.StdEncoding.EncodeToString(image)

	system := `You are a forensic image analyst. Inspect this photo for two things:
1) A visible AI-generator watermark or logo burned into the pixels (e.g. a small
   corner logo from an image generation tool). If present, name the generator if
   recognizable, transcribe any watermark text, and describe its location.
2) Whether this image is itself a screenshot of another screen (status bar,
   browser chrome, app UI elements, obvious screenshot cropping) rather than a
   camera photograph.
Return STRICT JSON:
{
  "watermarkGenerator": string,   // "" if no watermark found
  "watermarkText": string,
  "watermarkLocation": string,    // e.g. "bottom-right corner"
  "watermarkConfidence": number,  // 0..1, 0 if no watermark
  "isScreenshot": boolean,
  "screenshotConfidence": number  // 0..1
}`

	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{
					map[string]any{"text": system},
					map[string]any{"inline_data": map[string]any{
						"mime_type": mime,
						"data":      b64,
					}},
				},
			},
		},
		"generationConfig": map[string]any{"temperature": 0},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("gemini: marshal request: %w", err)
	}
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1/models/%s:generateContent?key=%s", model, p.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("gemini: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("gemini %d: %s", resp.StatusCode, string(x))
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return Result{}, nil
	}

	rawText := util.StripCodeFences(out.Candidates[0].Content.Parts[0].Text)
	var r Result
	if err := json.Unmarshal([]byte(rawText), &r); err != nil {
		return Result{}, fmt.Errorf("gemini: parse model output: %w", err)
	}
	return r, nil
}
