// format.go turns raw EXIF-shaped fields into the short human sentences the
// renderer embeds in a verdict message. Adapted from original_source's
// notifications.py humanize_metadata helpers.
package notify

import (
	"fmt"
	"strings"

	"imageverify/api/internal/model"
)

func humanizeCamera(s model.DetectorSignals) string {
	parts := []string{}
	if s.CameraMake != "" {
		parts = append(parts, s.CameraMake)
	}
	if s.CameraModel != "" {
		parts = append(parts, s.CameraModel)
	}
	if len(parts) == 0 {
		return "Unknown device"
	}
	return strings.Join(parts, " ")
}

func humanizeSoftware(s model.DetectorSignals) string {
	switch {
	case s.CreatorTool != "" && s.Software != "":
		return fmt.Sprintf("%s (via %s)", s.Software, s.CreatorTool)
	case s.Software != "":
		return s.Software
	case s.CreatorTool != "":
		return s.CreatorTool
	default:
		return "Not recorded"
	}
}

func humanizeCaptureTime(s model.DetectorSignals) string {
	if s.CaptureTimestamp == "" {
		return "Unknown"
	}
	return s.CaptureTimestamp
}

func humanizeVerdict(v model.Verdict) string {
	switch v {
	case model.VerdictReal:
		return "Likely authentic"
	case model.VerdictAIGenerated:
		return "Likely AI-generated"
	case model.VerdictManipulated:
		return "Likely manipulated"
	default:
		return "Inconclusive"
	}
}
