package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageverify/api/internal/model"
)

func TestMarshalSignals(t *testing.T) {
	raw, err := marshalSignals(model.DetectorSignals{AIHeuristic: 0.5, CameraMake: "Pixel"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"ai_heuristic\":0.5")
	assert.Contains(t, string(raw), "Pixel")
}
