package domain

import "testing"

func TestParsePointFromString(t *testing.T) {
	p, err := ParsePoint("(3.4, 48.2)")
	if err != nil {
		t.Fatalf("ParsePoint failed: %v", err)
	}
	if p.Lon != 3.4 || p.Lat != 48.2 {
		t.Errorf("got %+v", p)
	}

	p, err = ParsePoint("[2.2, 49]")
	if err != nil {
		t.Fatalf("bracket form failed: %v", err)
	}
	if p.Lon != 2.2 || p.Lat != 49 {
		t.Errorf("got %+v", p)
	}
}

func TestParsePointFromGeoJSON(t *testing.T) {
	p, err := ParsePoint(map[string]any{
		"type":        "Point",
		"coordinates": []any{3.4, 48.2},
	})
	if err != nil {
		t.Fatalf("ParsePoint failed: %v", err)
	}
	if p.Lon != 3.4 || p.Lat != 48.2 {
		t.Errorf("got %+v", p)
	}
}

func TestParsePointFromLonLatObject(t *testing.T) {
	p, err := ParsePoint(map[string]any{"lon": 1.1, "lat": 44.0})
	if err != nil {
		t.Fatalf("ParsePoint failed: %v", err)
	}
	if p.Lon != 1.1 || p.Lat != 44.0 {
		t.Errorf("got %+v", p)
	}
}

func TestParsePointFromPair(t *testing.T) {
	p, err := ParsePoint([]any{3.4, 48.2})
	if err != nil {
		t.Fatalf("ParsePoint failed: %v", err)
	}
	if p.Lon != 3.4 || p.Lat != 48.2 {
		t.Errorf("got %+v", p)
	}
}

func TestParsePointEmpty(t *testing.T) {
	for _, raw := range []any{nil, ""} {
		p, err := ParsePoint(raw)
		if err != nil {
			t.Errorf("ParsePoint(%v) failed: %v", raw, err)
		}
		if p != nil {
			t.Errorf("ParsePoint(%v) = %+v, want nil", raw, p)
		}
	}
}

func TestParsePointRejectsGarbage(t *testing.T) {
	for _, raw := range []any{"coucou", "(,)", []any{1.0}, 42} {
		if _, err := ParsePoint(raw); err == nil {
			t.Errorf("ParsePoint(%v) should have failed", raw)
		}
	}
}
