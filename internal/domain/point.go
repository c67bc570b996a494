package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// SRID is the spatial reference used for every geographic point (WGS84).
const SRID = 4326

var lonLatPattern = regexp.MustCompile(`^[\[(](-?\d{0,3}(?:\.\d*)?), ?(-?\d{0,3}(?:\.\d*)?)[\])]$`)

// Point is a geographic position in WGS84 longitude/latitude order.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ParsePoint coerces an externally supplied value into a Point. It accepts a
// Point, a GeoJSON-style object carrying a "coordinates" pair, a rendered
// {"lon": x, "lat": y} object, a "(lon, lat)" or "[lon, lat]" string, or a
// two-element ordered pair. Empty input coerces to nil.
func ParsePoint(raw any) (*Point, error) {
	if isEmpty(raw) {
		return nil, nil
	}

	switch v := raw.(type) {
	case Point:
		return &v, nil
	case *Point:
		return v, nil
	case map[string]any:
		if coords, ok := v["coordinates"]; ok {
			return pairToPoint(coords)
		}
		lon, lonOK := toFloat(v["lon"])
		lat, latOK := toFloat(v["lat"])
		if lonOK && latOK {
			return &Point{Lon: lon, Lat: lat}, nil
		}
		return nil, fmt.Errorf("object is neither GeoJSON nor lon/lat")
	case string:
		m := lonLatPattern.FindStringSubmatch(v)
		if m == nil {
			return nil, fmt.Errorf("unparseable point %q", v)
		}
		lon, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable longitude %q", m[1])
		}
		lat, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable latitude %q", m[2])
		}
		return &Point{Lon: lon, Lat: lat}, nil
	default:
		return pairToPoint(raw)
	}
}

func pairToPoint(raw any) (*Point, error) {
	pair, ok := toSlice(raw)
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("expected a [lon, lat] pair")
	}
	lon, lonOK := toFloat(pair[0])
	lat, latOK := toFloat(pair[1])
	if !lonOK || !latOK {
		return nil, fmt.Errorf("non-numeric coordinates in pair")
	}
	return &Point{Lon: lon, Lat: lat}, nil
}

func toSlice(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	case [2]float64:
		return []any{v[0], v[1]}, true
	default:
		return nil, false
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
