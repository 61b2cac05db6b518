package phash_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"imageverify/api/internal/phash"
)

// checkerboard draws alternating blocks of size cellSize so the image has
// the low-frequency structure a perceptual hash actually keys on; a flat
// fill would hash to all-zero regardless of color.
func checkerboard(t *testing.T, cellSize int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x/cellSize+y/cellSize)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompute_SameImageZeroDistance(t *testing.T) {
	data := checkerboard(t, 8)

	h1, err := phash.Compute(data)
	require.NoError(t, err)
	h2, err := phash.Compute(data)
	require.NoError(t, err)

	d, err := phash.Distance(h1, h2)
	require.NoError(t, err)
	require.Equal(t, 0, d)
}

func TestCompute_DifferentImagesNonZeroDistance(t *testing.T) {
	coarse := checkerboard(t, 32)
	fine := checkerboard(t, 4)

	h1, err := phash.Compute(coarse)
	require.NoError(t, err)
	h2, err := phash.Compute(fine)
	require.NoError(t, err)

	d, err := phash.Distance(h1, h2)
	require.NoError(t, err)
	require.Greater(t, d, 0)
}
