// Package analysisapi is the HTTP client for the remote image-forensics
// detection service (spec §3 "Detector Signals", §6). It POSTs a multipart
// request with the image, detail level, and EXIF-preservation flag and
// decodes the detector signal bundle the service returns. Grounded in
// original_source's fraudlens_client.py request/response shape, built the
// way the teacher's Gemini/OCR HTTP clients are built: a single *http.Client
// with an explicit timeout, no retry/backoff beyond what the worker's job
// retry policy already provides.
package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"imageverify/api/internal/apperr"
	"imageverify/api/internal/model"
	"imageverify/api/internal/scenario"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// wireVisualWatermark mirrors the "visual_watermark" object in spec §6's
// response shape; field names match the wire exactly.
type wireVisualWatermark struct {
	Generator  string  `json:"generator"`
	Text       string  `json:"text"`
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
}

// wireGPS mirrors the "gps" object in spec §6's response shape.
type wireGPS struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt,omitempty"`
}

// wireDetails mirrors the "details" object of spec §6's response exactly —
// field names here are the remote service's wire vocabulary, which does not
// match model.DetectorSignals's internal field names (e.g. "ai_detection_score"
// on the wire is AIHeuristic internally). Decoding straight into
// model.DetectorSignals silently drops every mismatched field to its zero
// value, so this struct exists purely as the wire/internal boundary adapter.
type wireDetails struct {
	AIDetectionScore   float64              `json:"ai_detection_score"`
	FFTScore           float64              `json:"fft_score"`
	MetadataFraudScore float64              `json:"metadata_fraud_score"`
	FaceSwapScore      float64              `json:"face_swap_score"`
	FaceDetected       bool                 `json:"face_detected"`
	VisualWatermark    *wireVisualWatermark `json:"visual_watermark,omitempty"`
	C2PAPresent        bool                 `json:"c2pa_present"`
	AISoftwareInEXIF   bool                 `json:"ai_software_in_exif"`
	ScreenshotDetected bool                 `json:"screenshot_detected"`

	CameraMake       string   `json:"camera_make,omitempty"`
	CameraModel      string   `json:"camera_model,omitempty"`
	Software         string   `json:"software,omitempty"`
	CreatorTool      string   `json:"creator_tool,omitempty"`
	CaptureTimestamp string   `json:"capture_timestamp,omitempty"`
	GPS              *wireGPS `json:"gps,omitempty"`
	ExifFieldCount   int      `json:"exif_field_count,omitempty"`
	DeviceSerial     string   `json:"device_serial,omitempty"`
	LensSerial       string   `json:"lens_serial,omitempty"`
}

// wireResponse mirrors the top-level response shape of spec §6.
type wireResponse struct {
	ProcessingTimeMs int         `json:"processing_time_ms"`
	Details          wireDetails `json:"details"`
}

// toSignals translates the wire response into the internal DetectorSignals
// vocabulary the fusion rule (spec §4.5) consumes.
func (r wireResponse) toSignals() model.DetectorSignals {
	d := r.Details
	sig := model.DetectorSignals{
		AIHeuristic:        d.AIDetectionScore,
		FFTScore:           d.FFTScore,
		MetadataRisk:       d.MetadataFraudScore,
		FaceSwapScore:      d.FaceSwapScore,
		FaceDetected:       d.FaceDetected,
		C2PAWatermark:      d.C2PAPresent,
		AISoftwareInEXIF:   d.AISoftwareInEXIF,
		ScreenshotDetected: d.ScreenshotDetected,
		CameraMake:         d.CameraMake,
		CameraModel:        d.CameraModel,
		Software:           d.Software,
		CreatorTool:        d.CreatorTool,
		CaptureTimestamp:   d.CaptureTimestamp,
		ExifFieldCount:     d.ExifFieldCount,
		DeviceSerial:       d.DeviceSerial,
		LensSerial:         d.LensSerial,
	}
	if d.VisualWatermark != nil {
		sig.VisualWatermark = &model.VisualWatermark{
			Generator:  d.VisualWatermark.Generator,
			Text:       d.VisualWatermark.Text,
			Location:   d.VisualWatermark.Location,
			Confidence: d.VisualWatermark.Confidence,
		}
	}
	if d.GPS != nil {
		sig.GPS = &model.GPS{Lat: d.GPS.Lat, Lon: d.GPS.Lon, Alt: d.GPS.Alt}
	}
	return sig
}

// Analyze uploads image and returns the detector signals the remote service
// computed, plus the processing time it reports. preserveEXIF asks the
// service not to strip EXIF before its own internal processing, mirroring
// the job flag the user set at upload time, and also selects the
// detail_level the service is asked to run at (spec §4.4 step 3: "detailed
// if preserve_exif else basic").
func (c *Client) Analyze(ctx context.Context, image []byte, scn scenario.Scenario, preserveEXIF bool) (model.DetectorSignals, int, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("image", "upload.bin")
	if err != nil {
		return model.DetectorSignals{}, 0, fmt.Errorf("analysisapi: create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return model.DetectorSignals{}, 0, fmt.Errorf("analysisapi: write image: %w", err)
	}
	detailLevel := "basic"
	if preserveEXIF {
		detailLevel = "detailed"
	}
	_ = w.WriteField("scenario", string(scn))
	_ = w.WriteField("detail_level", detailLevel)
	_ = w.WriteField("preserve_exif", fmt.Sprintf("%t", preserveEXIF))
	if err := w.Close(); err != nil {
		return model.DetectorSignals{}, 0, fmt.Errorf("analysisapi: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", &body)
	if err != nil {
		return model.DetectorSignals{}, 0, fmt.Errorf("analysisapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		var ne net.Error
		if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
			return model.DetectorSignals{}, 0, fmt.Errorf("%w: %v", apperr.ErrAnalysisTimeout, err)
		}
		return model.DetectorSignals{}, 0, fmt.Errorf("%w: %v", apperr.ErrAnalysisError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return model.DetectorSignals{}, 0, fmt.Errorf("%w: status %d: %s", apperr.ErrAnalysisError, resp.StatusCode, string(x))
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.DetectorSignals{}, 0, fmt.Errorf("%w: decode response: %v", apperr.ErrAnalysisError, err)
	}
	return out.toSignals(), out.ProcessingTimeMs, nil
}
