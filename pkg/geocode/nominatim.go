package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// nominatimPlace is one element of the Nominatim /search response.
// Coordinates come back as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Class       string `json:"class"`
	Type        string `json:"type"`
	AddressType string `json:"addresstype"`
	DisplayName string `json:"display_name"`
}

// geocodeNominatim geocodes a single address using the Nominatim search API,
// restricted to Nigeria.
func (g *geocoder) geocodeNominatim(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := formatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":            {oneLine},
		"format":       {"jsonv2"},
		"countrycodes": {"ng"},
		"limit":        {"1"},
	}

	reqURL := strings.TrimRight(g.nominatimURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}

	if len(places) == 0 {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	place := places[0]
	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim parse lat %q", place.Lat)
	}
	lon, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim parse lon %q", place.Lon)
	}

	return &Result{
		Latitude:  lat,
		Longitude: lon,
		Source:    "nominatim",
		Quality:   nominatimQuality(place),
		Matched:   true,
	}, nil
}

// nominatimQuality maps the matched place kind to the quality taxonomy.
// A building or fuel-station match is as precise as it gets; a road match
// gives an interpolated position; settlement matches are centroids.
func nominatimQuality(place nominatimPlace) string {
	kind := place.AddressType
	if kind == "" {
		kind = place.Type
	}
	switch kind {
	case "building", "amenity", "fuel", "house":
		return "rooftop"
	case "road", "highway":
		return "range"
	case "city", "town", "village", "suburb", "neighbourhood", "hamlet":
		return "centroid"
	default:
		return "approximate"
	}
}

// formatOneLine formats an address as a single line, Nigeria appended so
// ambiguous names don't resolve abroad.
func formatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return strings.Join(append(nonEmpty, "Nigeria"), ", ")
}
