package locator

import (
	"errors"
	"math"
	"testing"

	"vcl/logerr"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		loc     string
		wantLat float64
		wantLon float64
	}{
		{name: "six_char", loc: "FN42LL", wantLat: 42.4792, wantLon: -71.0417},
		{name: "four_char_is_center_extended", loc: "FN42", wantLat: 42.4792, wantLon: -71.0417},
		{name: "lower_case", loc: "fn20xr", wantLat: 40.7292, wantLon: -74.0417},
		{name: "origin_cell", loc: "JJ00AA", wantLat: 0.0208, wantLon: 0.0417},
		{name: "south_west_corner", loc: "AA00AA", wantLat: -89.9792, wantLon: -179.9583},
		{name: "north_east_corner", loc: "RR99XX", wantLat: 89.9792, wantLon: 179.9583},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, err := Decode(tt.loc)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", tt.loc, err)
			}
			if math.Abs(lat-tt.wantLat) > 1e-9 || math.Abs(lon-tt.wantLon) > 1e-9 {
				t.Fatalf("Decode(%q) = (%.4f, %.4f), want (%.4f, %.4f)", tt.loc, lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		loc  string
		want error
	}{
		{loc: "", want: ErrLength},
		{loc: "FN4", want: ErrLength},
		{loc: "FN42LLX", want: ErrLength},
		{loc: "SN42", want: ErrField},
		{loc: "F142", want: ErrField},
		{loc: "FNA2", want: ErrSquare},
		{loc: "FN42LY", want: ErrSubsquare},
	}
	for _, tt := range tests {
		_, _, err := Decode(tt.loc)
		if err == nil {
			t.Fatalf("Decode(%q) expected error", tt.loc)
		}
		if !errors.Is(err, tt.want) {
			t.Fatalf("Decode(%q) error %v, want %v", tt.loc, err, tt.want)
		}
		if !logerr.Is(err, logerr.Validation) {
			t.Fatalf("Decode(%q) expected validation kind, got %v", tt.loc, err)
		}
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{a: "FN20XR", b: "FN31PR", want: 158},
		{a: "FN42", b: "FN31PR", want: 161},
		{a: "FN35FL", b: "FN25DK", want: 169},
		{a: "EM12KX", b: "FN42LL", want: 2513},
		{a: "FN25DK", b: "FN25DL", want: 5},
		{a: "FN35FL", b: "FN35FL", want: 0},
	}
	for _, tt := range tests {
		got, err := Distance(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Distance(%s,%s) error: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Fatalf("Distance(%s,%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		back, err := Distance(tt.b, tt.a)
		if err != nil {
			t.Fatalf("Distance(%s,%s) error: %v", tt.b, tt.a, err)
		}
		if back != got {
			t.Fatalf("distance not symmetric: %d vs %d", got, back)
		}
	}
}

func TestDistanceSelfIsZero(t *testing.T) {
	for _, loc := range []string{"AA00AA", "JJ00AA", "FN42LL", "RR99XX", "KO85TS"} {
		got, err := Distance(loc, loc)
		if err != nil {
			t.Fatalf("Distance(%s) error: %v", loc, err)
		}
		if got != 0 {
			t.Fatalf("Distance(%s,%s) = %d, want 0", loc, loc, got)
		}
	}
}

func TestDistanceInvalid(t *testing.T) {
	if _, err := Distance("FN42", "ZZ99"); err == nil {
		t.Fatalf("expected invalid locator error")
	}
}

func TestExtendAndPrefix(t *testing.T) {
	if got := Extend("FN42"); got != "FN42LL" {
		t.Fatalf("Extend(FN42) = %q", got)
	}
	if got := Extend("FN"); got != "FN55LL" {
		t.Fatalf("Extend(FN) = %q", got)
	}
	if got := Extend("FN42AB"); got != "FN42AB" {
		t.Fatalf("Extend(FN42AB) = %q", got)
	}
	if got := Prefix("FN42", 6); got != "FN42" {
		t.Fatalf("Prefix short = %q", got)
	}
	if got := Prefix("FN42AB", 4); got != "FN42" {
		t.Fatalf("Prefix long = %q", got)
	}
}

func TestFromLatLon(t *testing.T) {
	tests := []struct {
		name      string
		lat, lon  float64
		precision int
		want      string
		wantErr   bool
	}{
		{name: "origin", lat: 0, lon: 0, precision: 4, want: "JJ00"},
		{name: "max_edge", lat: 89.9999, lon: 179.9999, precision: 4, want: "RR99"},
		{name: "pole_clamp", lat: 90, lon: 180, precision: 6, want: "RR99XX"},
		{name: "round_trip_center", lat: 42.4792, lon: -71.0417, precision: 6, want: "FN42LL"},
		{name: "nan", lat: math.NaN(), lon: 0, precision: 4, wantErr: true},
		{name: "out_of_range", lat: 95, lon: 0, precision: 4, wantErr: true},
		{name: "bad_precision", lat: 0, lon: 0, precision: 5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromLatLon(tt.lat, tt.lon, tt.precision)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("FromLatLon = %q, want %q", got, tt.want)
			}
		})
	}
}
