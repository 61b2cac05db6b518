// geocode.go resolves an optional GPS fix on an image into a rough place
// name using OpenStreetMap's Nominatim, the same free reverse-geocoding
// service original_source's notifications.py calls. Best-effort: a failure
// here never blocks the rest of the notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"imageverify/api/internal/model"
)

type Geocoder struct {
	httpc *http.Client
}

func NewGeocoder() *Geocoder {
	return &Geocoder{httpc: &http.Client{Timeout: 3 * time.Second}}
}

// ReverseGeocode returns a short "City, Country"-style label for gps, or ""
// if it can't be resolved.
func (g *Geocoder) ReverseGeocode(ctx context.Context, gps *model.GPS) string {
	if gps == nil {
		return ""
	}
	url := fmt.Sprintf("https://nominatim.openstreetmap.org/reverse?format=jsonv2&lat=%f&lon=%f", gps.Lat, gps.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "imageverify-bot/1.0")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var out struct {
		Address struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	place := out.Address.City
	if place == "" {
		place = out.Address.Town
	}
	if place == "" && out.Address.Country == "" {
		return ""
	}
	if place == "" {
		return out.Address.Country
	}
	if out.Address.Country == "" {
		return place
	}
	return place + ", " + out.Address.Country
}
