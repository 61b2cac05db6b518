package validate_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageverify/api/internal/apperr"
	"imageverify/api/internal/validate"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImage_AcceptsPNG(t *testing.T) {
	mime, err := validate.Image(pngBytes(t), 20*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
}

func TestImage_RejectsOversize(t *testing.T) {
	_, err := validate.Image(pngBytes(t), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedMedia))
}

func TestImage_RejectsUnknownFormat(t *testing.T) {
	_, err := validate.Image([]byte("not an image"), 1024)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedMedia))
}

func TestImage_RejectsEmpty(t *testing.T) {
	_, err := validate.Image(nil, 1024)
	require.Error(t, err)
}
