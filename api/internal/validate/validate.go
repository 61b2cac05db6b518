// Package validate enforces the upload constraints at the ingress boundary
// (spec §4.1 "unsupported media" edge case): format allowlist and size cap,
// checked before anything is persisted or enqueued.
package validate

import (
	"fmt"
	"net/http"

	"imageverify/api/internal/apperr"
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/heic": true,
	"image/webp": true,
	"image/mpo":  true,
}

// Image checks size and sniffed content type against the allowlist. It
// returns the detected MIME type on success.
func Image(data []byte, maxBytes int64) (string, error) {
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", apperr.ErrUnsupportedMedia, len(data), maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", apperr.ErrUnsupportedMedia)
	}
	mime := sniff(data)
	if !allowedMIME[mime] {
		return "", fmt.Errorf("%w: detected type %q is not supported", apperr.ErrUnsupportedMedia, mime)
	}
	return mime, nil
}

// sniff layers MPO/HEIC detection (stdlib's DetectContentType doesn't know
// either) over http.DetectContentType for everything else.
func sniff(data []byte) string {
	if isMPO(data) {
		return "image/mpo"
	}
	if isHEIC(data) {
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// isMPO checks for a JPEG (APP2/MPF) multi-picture object: a JFIF-style
// start-of-image marker followed by an MPF APP2 segment.
func isMPO(data []byte) bool {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return false
	}
	for i := 2; i+4 < len(data) && i < 65536; {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		if marker == 0xD8 || marker == 0xD9 {
			i += 2
			continue
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		if marker == 0xE2 && i+4+4 <= len(data) && string(data[i+4:i+8]) == "MPF\x00" {
			return true
		}
		if segLen < 2 {
			break
		}
		i += 2 + segLen
	}
	return false
}

func isHEIC(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return true
	default:
		return false
	}
}
