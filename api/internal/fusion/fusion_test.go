package fusion_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageverify/api/internal/fusion"
	"imageverify/api/internal/model"
)

func TestFuse_VisualWatermark(t *testing.T) {
	// S1: a Gemini-generated image carries a visible generator watermark.
	r := fusion.Fuse(model.DetectorSignals{
		AIHeuristic: 0.9,
		VisualWatermark: &model.VisualWatermark{
			Generator:  "Google Gemini/Imagen",
			Text:       "made with google ai",
			Location:   "bottom_right",
			Confidence: 0.90,
		},
	})
	require.Equal(t, model.VerdictAIGenerated, r.Verdict)
	assert.GreaterOrEqual(t, r.Confidence, 0.95)
	assert.Contains(t, r.Reason, "Google")
}

func TestFuse_TrustedEditorWithSerials(t *testing.T) {
	// S2: Canon DSLR JPEG edited in Lightroom, both camera and lens serials present.
	r := fusion.Fuse(model.DetectorSignals{
		AIHeuristic:  0.15,
		FFTScore:     0.25,
		MetadataRisk: 55,
		Software:     "Adobe Photoshop CS6",
		CreatorTool:  "Adobe Photoshop Lightroom 5.3",
		CameraMake:   "Canon",
		CameraModel:  "EOS R5",
		DeviceSerial: "1234567890",
		LensSerial:   "9876543210",
	})
	require.Equal(t, model.VerdictReal, r.Verdict)
	assert.GreaterOrEqual(t, r.Confidence, 0.70)
}

func TestFuse_GoodMetadataBonusEscalatesToReal(t *testing.T) {
	// S3: Samsung Galaxy S21 photo containing text, moderate combined signal
	// but low metadata risk and a real camera make/model.
	r := fusion.Fuse(model.DetectorSignals{
		AIHeuristic:  0.39,
		FFTScore:     0.63,
		MetadataRisk: 30,
		CameraMake:   "samsung",
		CameraModel:  "SM-G991B",
	})
	require.Equal(t, model.VerdictReal, r.Verdict)
	assert.GreaterOrEqual(t, r.Confidence, 0.70)
}

func TestFuse_C2PACascade(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{C2PAWatermark: true})
	require.Equal(t, model.VerdictAIGenerated, r.Verdict)
	assert.GreaterOrEqual(t, r.Confidence, 0.95)
}

func TestFuse_AISoftwareInEXIFCascade(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{AISoftwareInEXIF: true})
	require.Equal(t, model.VerdictAIGenerated, r.Verdict)
}

func TestFuse_ScreenshotCascade(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{ScreenshotDetected: true})
	require.Equal(t, model.VerdictManipulated, r.Verdict)
	assert.GreaterOrEqual(t, r.Confidence, 0.95)
}

func TestFuse_HighMetadataRiskEarlyExit(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{MetadataRisk: 95})
	assert.Equal(t, model.VerdictAIGenerated, r.Verdict)

	r2 := fusion.Fuse(model.DetectorSignals{MetadataRisk: 82})
	assert.Equal(t, model.VerdictManipulated, r2.Verdict)
}

func TestFuse_NoSignalIsReal(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{})
	assert.Equal(t, model.VerdictReal, r.Verdict)
	assert.GreaterOrEqual(t, r.Confidence, 0.70)
}

func TestFuse_HighCombinedIsAIGenerated(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{
		AIHeuristic: 0.95,
		FFTScore:    0.9,
	})
	assert.Equal(t, model.VerdictAIGenerated, r.Verdict)
}

func TestFuse_ReasonNeverEmpty(t *testing.T) {
	r := fusion.Fuse(model.DetectorSignals{AIHeuristic: 0.4})
	assert.False(t, strings.TrimSpace(r.Reason) == "")
}
