// Package phash computes perceptual hashes used by the duplicate-upload
// middleware to catch re-encodes and crops of an already-analyzed image,
// which a byte-level sha256 comparison would miss (spec §4.4).
package phash

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

// Compute returns the hex-encoded perceptual hash of an image.
func Compute(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("phash: decode: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("phash: compute: %w", err)
	}
	return hash.ToString(), nil
}

// Distance returns the Hamming distance between two hex-encoded perceptual
// hashes produced by Compute. A distance of 0-10 is treated as a near-dup
// by the calling middleware (spec §4.4 threshold).
func Distance(a, b string) (int, error) {
	ha, err := goimagehash.ImageHashFromString(a)
	if err != nil {
		return 0, fmt.Errorf("phash: parse %q: %w", a, err)
	}
	hb, err := goimagehash.ImageHashFromString(b)
	if err != nil {
		return 0, fmt.Errorf("phash: parse %q: %w", b, err)
	}
	return ha.Distance(hb)
}
