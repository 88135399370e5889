// Package geocoding resolves place names to coordinates and coordinates to
// road names.
package geocoding

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rhobro/dr-pings-booty/internal/geo"
)

// Sentinel errors for geocoding operations.
var (
	// ErrNotFound indicates the lookup succeeded but produced no usable result.
	ErrNotFound = errors.New("no geocoding result")
	// ErrProviderUnavailable indicates the provider could not be reached or returned an error status.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	// ErrMalformedResponse indicates the provider response could not be decoded.
	ErrMalformedResponse = errors.New("malformed geocoding response")
)

// Geocoder performs forward and reverse lookups.
type Geocoder interface {
	// Forward resolves a free-text place name to its best-match coordinate.
	Forward(ctx context.Context, place string) (geo.Coordinate, error)
	// Reverse resolves a coordinate to the name of the road it lies on.
	Reverse(ctx context.Context, c geo.Coordinate) (string, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Error provides detailed error information from a geocoding provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RoadFromDisplayName extracts a road name from the first comma-separated
// segment of a free-text address. Segments of three characters or fewer and
// purely numeric segments (house numbers) are rejected.
func RoadFromDisplayName(displayName string) (string, bool) {
	first, _, _ := strings.Cut(displayName, ",")
	first = strings.TrimSpace(first)

	if utf8.RuneCountInString(first) <= 3 {
		return "", false
	}
	if isDigits(first) {
		return "", false
	}
	return first, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
