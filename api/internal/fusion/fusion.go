// Package fusion implements the verdict-fusion rule (spec §4.5): the single
// priority cascade that turns a DetectorSignals bundle into one
// {verdict, confidence, reason} triple. It is a pure function — no network,
// no clock — so the same input always produces the same output (spec §8
// property 7) and the cascade can be exercised without the analysis API.
package fusion

import (
	"fmt"
	"strings"

	"imageverify/api/internal/model"
)

const (
	weightAI       = 0.35
	weightFFT      = 0.30
	weightMetadata = 0.25
	weightFace     = 0.10
)

var trustedStrong = []string{"lightroom", "capture one"}
var trustedMedium = []string{"photoshop"}

// Fuse applies the cascade in spec §4.5, first match wins.
func Fuse(s model.DetectorSignals) model.FusionResult {
	if s.VisualWatermark != nil {
		gen := s.VisualWatermark.Generator
		if gen == "" {
			gen = "an AI image generator"
		}
		return model.FusionResult{
			Verdict:    model.VerdictAIGenerated,
			Confidence: 0.98,
			Reason:     fmt.Sprintf("Visual watermark identifies %s as the source.", gen),
		}
	}

	if s.C2PAWatermark {
		return model.FusionResult{
			Verdict:    model.VerdictAIGenerated,
			Confidence: 0.95,
			Reason:     "C2PA content-provenance manifest present.",
		}
	}

	if s.AISoftwareInEXIF {
		return model.FusionResult{
			Verdict:    model.VerdictAIGenerated,
			Confidence: 0.98,
			Reason:     "EXIF names AI generation software.",
		}
	}

	if s.ScreenshotDetected {
		return model.FusionResult{
			Verdict:    model.VerdictManipulated,
			Confidence: 0.95,
			Reason:     "Image is a screenshot, not a camera original.",
		}
	}

	if s.MetadataRisk >= 80 {
		verdict := model.VerdictManipulated
		if s.MetadataRisk >= 90 {
			verdict = model.VerdictAIGenerated
		}
		conf := s.MetadataRisk / 100
		if conf > 0.98 {
			conf = 0.98
		}
		return model.FusionResult{
			Verdict:    verdict,
			Confidence: conf,
			Reason:     "Metadata fraud score is critically high.",
		}
	}

	return weightedFusion(s)
}

func weightedFusion(s model.DetectorSignals) model.FusionResult {
	faceTerm := 0.0
	if s.FaceDetected {
		faceTerm = s.FaceSwapScore
	}
	combined := weightAI*s.AIHeuristic + weightFFT*s.FFTScore + weightMetadata*(s.MetadataRisk/100) + weightFace*faceTerm

	var adjustments []string

	if level := trustedSoftwareLevel(s.Software, s.CreatorTool); level != "" {
		switch level {
		case "strong":
			combined -= 0.30
			adjustments = append(adjustments, "trusted editor (strong)")
		case "medium":
			combined -= 0.15
			adjustments = append(adjustments, "trusted editor (medium)")
		}
	}

	switch {
	case s.DeviceSerial != "" && s.LensSerial != "":
		combined -= 0.30
		adjustments = append(adjustments, "camera+lens serials present")
	case s.DeviceSerial != "" || s.LensSerial != "":
		combined -= 0.20
		adjustments = append(adjustments, "one camera serial present")
	}

	if s.MetadataRisk < 40 && (s.CameraMake != "" || s.CameraModel != "") {
		bonus := (40 - s.MetadataRisk) / 100
		if combined >= 0.35 && combined < 0.50 && bonus > 0 {
			conf := 1 - combined + bonus
			if conf < 0.70 {
				conf = 0.70
			}
			return model.FusionResult{
				Verdict:    model.VerdictReal,
				Confidence: conf,
				Reason:     reasonWithAdjustments("Camera metadata is internally consistent.", adjustments),
			}
		}
	}

	switch {
	case combined >= 0.70:
		conf := combined
		if conf > 0.95 {
			conf = 0.95
		}
		return model.FusionResult{
			Verdict:    model.VerdictAIGenerated,
			Confidence: conf,
			Reason:     reasonWithAdjustments("Combined AI/frequency/metadata signal is high.", adjustments),
		}
	case combined >= 0.50:
		verdict := model.VerdictManipulated
		if s.AIHeuristic >= s.FFTScore {
			verdict = model.VerdictAIGenerated
		}
		return model.FusionResult{
			Verdict:    verdict,
			Confidence: combined,
			Reason:     reasonWithAdjustments("Combined signal is elevated but not conclusive.", adjustments),
		}
	case combined >= 0.35:
		return model.FusionResult{
			Verdict:    model.VerdictInconclusive,
			Confidence: 1 - combined,
			Reason:     reasonWithAdjustments("Signals are mixed; no clear verdict.", adjustments),
		}
	default:
		conf := clamp(1-combined, 0.70, 0.95)
		return model.FusionResult{
			Verdict:    model.VerdictReal,
			Confidence: conf,
			Reason:     reasonWithAdjustments("No meaningful manipulation or AI signal found.", adjustments),
		}
	}
}

func trustedSoftwareLevel(software, creatorTool string) string {
	haystack := strings.ToLower(software + " " + creatorTool)
	for _, name := range trustedStrong {
		if strings.Contains(haystack, name) {
			return "strong"
		}
	}
	for _, name := range trustedMedium {
		if strings.Contains(haystack, name) {
			return "medium"
		}
	}
	return ""
}

func reasonWithAdjustments(base string, adjustments []string) string {
	if len(adjustments) == 0 {
		return base
	}
	return base + " (" + strings.Join(adjustments, ", ") + ")"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
