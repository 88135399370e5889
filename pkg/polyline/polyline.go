// Package polyline decodes and encodes route geometries in the encoded
// polyline format, including the three-dimensional variant used by
// OpenRouteService when elevation is requested.
// The base algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
)

// ErrTruncated is returned when the encoded string ends mid-value.
var ErrTruncated = errors.New("polyline: truncated input")

const (
	coordFactor     = 1e5
	elevationFactor = 1e2
)

// Point is a decoded vertex. Ele is zero for two-dimensional polylines.
type Point struct {
	Lat float64
	Lon float64
	Ele float64
}

// Tuple returns the point in GeoJSON axis order: [lon, lat] or
// [lon, lat, ele].
func (p Point) Tuple(withElevation bool) []float64 {
	if withElevation {
		return []float64{p.Lon, p.Lat, p.Ele}
	}
	return []float64{p.Lon, p.Lat}
}

// Decode decodes a two-dimensional polyline with precision 5.
func Decode(encoded string) ([]Point, error) {
	return decode(encoded, false)
}

// DecodeElevation decodes a polyline whose vertices carry a third value,
// elevation in meters with precision 2.
func DecodeElevation(encoded string) ([]Point, error) {
	return decode(encoded, true)
}

func decode(encoded string, withElevation bool) ([]Point, error) {
	if encoded == "" {
		return nil, nil
	}

	var (
		points        []Point
		lat, lon, ele int
		index         int
		delta         int
		err           error
	)

	for index < len(encoded) {
		if delta, index, err = decodeValue(encoded, index); err != nil {
			return nil, err
		}
		lat += delta

		if delta, index, err = decodeValue(encoded, index); err != nil {
			return nil, err
		}
		lon += delta

		p := Point{Lat: float64(lat) / coordFactor, Lon: float64(lon) / coordFactor}

		if withElevation {
			if delta, index, err = decodeValue(encoded, index); err != nil {
				return nil, err
			}
			ele += delta
			p.Ele = float64(ele) / elevationFactor
		}

		points = append(points, p)
	}

	return points, nil
}

// decodeValue decodes one signed value starting at index and returns it with
// the index of the next value.
func decodeValue(encoded string, index int) (int, int, error) {
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes points, including elevation when withElevation is set.
func Encode(points []Point, withElevation bool) string {
	if len(points) == 0 {
		return ""
	}

	width := 2
	if withElevation {
		width = 3
	}
	encoded := make([]byte, 0, len(points)*width*3)
	var prevLat, prevLon, prevEle int

	for _, p := range points {
		lat := int(math.Round(p.Lat * coordFactor))
		lon := int(math.Round(p.Lon * coordFactor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)
		prevLat, prevLon = lat, lon

		if withElevation {
			ele := int(math.Round(p.Ele * elevationFactor))
			encoded = encodeValue(encoded, ele-prevEle)
			prevEle = ele
		}
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
