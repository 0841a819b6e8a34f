package coordinate

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		format string
		system System
		keys   []Key
	}{
		{"xyz", Cartesian, []Key{KeyX, KeyY, KeyZ}},
		{"aed", Polar, []Key{KeyA, KeyE, KeyD}},
		{"azimrad", PolarRadians, []Key{KeyA}},
		{"x", Cartesian, []Key{KeyX}},
	}
	for _, c := range cases {
		system, keys, err := ParseFormat(c.format)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", c.format, err)
		}
		if system != c.system {
			t.Errorf("ParseFormat(%q): system = %v, want %v", c.format, system, c.system)
		}
		if len(keys) != len(c.keys) {
			t.Fatalf("ParseFormat(%q): keys = %v, want %v", c.format, keys, c.keys)
		}
		for i := range keys {
			if keys[i] != c.keys[i] {
				t.Errorf("ParseFormat(%q): keys[%d] = %v, want %v", c.format, i, keys[i], c.keys[i])
			}
		}
	}
}

func TestParseFormatInvalid(t *testing.T) {
	if _, _, err := ParseFormat("qqq"); err == nil {
		t.Fatalf("ParseFormat(\"qqq\") expected an error")
	}
}

func TestCartesianToPolarRoundTrip(t *testing.T) {
	c := NewCartesian(1, 0, 0)
	polar, err := c.ConvertTo(Polar)
	if err != nil {
		t.Fatalf("ConvertTo(Polar): %v", err)
	}
	if !almostEqual(polar[0], 0) || !almostEqual(polar[1], 0) || !almostEqual(polar[2], 1) {
		t.Errorf("ConvertTo(Polar) = %v, want [0 0 1]", polar)
	}

	back, err := NewPolar(polar[0], polar[1], polar[2]).ConvertTo(Cartesian)
	if err != nil {
		t.Fatalf("ConvertTo(Cartesian): %v", err)
	}
	if !almostEqual(back[0], 1) || !almostEqual(back[1], 0) || !almostEqual(back[2], 0) {
		t.Errorf("round trip = %v, want [1 0 0]", back)
	}
}

func TestElevationWrapsLikeAzimuth(t *testing.T) {
	c := NewPolar(0, 200, 1)
	got := c.Get([]Key{KeyE})[0]
	want := wrap(200, 360)
	if !almostEqual(got, want) {
		t.Errorf("elevation wrap = %v, want %v (same formula as azimuth, not reflected across +/-90)", got, want)
	}
	if !almostEqual(want, -160) {
		t.Fatalf("test setup error: wrap(200,360) = %v, want -160", want)
	}
}

func TestSetKeysReportsChange(t *testing.T) {
	c := NewCartesian(0, 0, 0)
	changed, err := c.SetKeys([]Key{KeyX}, []float64{0}, 1)
	if err != nil {
		t.Fatalf("SetKeys: %v", err)
	}
	if changed {
		t.Errorf("SetKeys with identical value reported changed=true")
	}
	changed, err = c.SetKeys([]Key{KeyX}, []float64{5}, 1)
	if err != nil {
		t.Fatalf("SetKeys: %v", err)
	}
	if !changed {
		t.Errorf("SetKeys with new value reported changed=false")
	}
}

func TestSetKeysRejectsWrongSystemKey(t *testing.T) {
	c := NewCartesian(0, 0, 0)
	if _, err := c.SetKeys([]Key{KeyA}, []float64{1}, 1); err == nil {
		t.Errorf("SetKeys with a polar key on a Cartesian coordinate should error")
	}
}

func TestAllFormatsParse(t *testing.T) {
	for _, f := range AllFormats() {
		if _, _, err := ParseFormat(f); err != nil {
			t.Errorf("AllFormats() produced %q which ParseFormat rejects: %v", f, err)
		}
	}
}
