// Package locator decodes Maidenhead grid locators and measures great-circle
// distance between them.
package locator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"vcl/logerr"
)

const (
	fieldLonSize  = 20.0
	fieldLatSize  = 10.0
	squareLonSize = 2.0
	squareLatSize = 1.0
	subLonSize    = squareLonSize / 24.0
	subLatSize    = squareLatSize / 24.0
	subCenterLon  = subLonSize / 2.0
	subCenterLat  = subLatSize / 2.0

	// EarthRadiusKm is the sphere radius used for contest distances.
	EarthRadiusKm = 6373.0

	// CenterSubsquare is appended to 4-character locators when a 6-character
	// position is needed ("assume grid center").
	CenterSubsquare = "LL"
	centerSquare    = "55"
)

var (
	ErrLength    = errors.New("locator must have 2, 4 or 6 characters")
	ErrField     = errors.New("field characters must be A-R")
	ErrSquare    = errors.New("square characters must be 0-9")
	ErrSubsquare = errors.New("subsquare characters must be A-X")
)

// Normalize trims whitespace and upper-cases the locator.
func Normalize(loc string) string {
	return strings.ToUpper(strings.TrimSpace(loc))
}

// Validate checks the locator's length and per-position alphabets. It does not
// fold case; callers normalize first when input came from a human.
func Validate(loc string) error {
	switch len(loc) {
	case 2, 4, 6:
	default:
		return logerr.Invalid("gridsquare", loc, ErrLength)
	}
	if !inRange(loc[0], 'A', 'R') || !inRange(loc[1], 'A', 'R') {
		return logerr.Invalid("gridsquare", loc, ErrField)
	}
	if len(loc) >= 4 && (!inRange(loc[2], '0', '9') || !inRange(loc[3], '0', '9')) {
		return logerr.Invalid("gridsquare", loc, ErrSquare)
	}
	if len(loc) == 6 && (!inRange(loc[4], 'A', 'X') || !inRange(loc[5], 'A', 'X')) {
		return logerr.Invalid("gridsquare", loc, ErrSubsquare)
	}
	return nil
}

func inRange(c, lo, hi byte) bool {
	return c >= lo && c <= hi
}

// Extend pads a 2- or 4-character locator to 6 characters with the central
// square/subsquare tokens. 6-character input is returned unchanged.
func Extend(loc string) string {
	switch len(loc) {
	case 2:
		return loc + centerSquare + CenterSubsquare
	case 4:
		return loc + CenterSubsquare
	default:
		return loc
	}
}

// Prefix returns the first n characters of loc, or all of it when shorter.
func Prefix(loc string, n int) string {
	if n < 0 {
		return ""
	}
	if len(loc) <= n {
		return loc
	}
	return loc[:n]
}

// Decode returns the latitude/longitude of the locator's sub-square center,
// rounded to 4 decimal places. Shorter locators are center-extended first.
func Decode(loc string) (lat float64, lon float64, err error) {
	g := Normalize(loc)
	if err := Validate(g); err != nil {
		return 0, 0, err
	}
	g = Extend(g)

	lon = float64(g[0]-'A')*fieldLonSize +
		float64(g[2]-'0')*squareLonSize +
		float64(g[4]-'A')*subLonSize + subCenterLon - 180.0
	lat = float64(g[1]-'A')*fieldLatSize +
		float64(g[3]-'0')*squareLatSize +
		float64(g[5]-'A')*subLatSize + subCenterLat - 90.0
	return round4(lat), round4(lon), nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Distance returns the haversine distance between two locators in whole
// kilometers. 4-character locators are center-extended before decoding.
func Distance(a, b string) (int, error) {
	lat1, lon1, err := Decode(a)
	if err != nil {
		return 0, err
	}
	lat2, lon2, err := Decode(b)
	if err != nil {
		return 0, err
	}
	return int(math.Round(haversineKm(lat1, lon1, lat2, lon2))), nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := rlat2 - rlat1
	dlon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// FromLatLon encodes a coordinate as a 4- or 6-character locator.
func FromLatLon(lat, lon float64, precision int) (string, error) {
	if precision != 4 && precision != 6 {
		return "", fmt.Errorf("locator: unsupported precision %d", precision)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return "", fmt.Errorf("locator: non-finite coordinate")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("locator: coordinate out of range (%.4f, %.4f)", lat, lon)
	}
	if lat == 90 {
		lat = 89.999999
	}
	if lon == 180 {
		lon = 179.999999
	}
	adjLon := lon + 180
	adjLat := lat + 90
	fieldLon := int(adjLon / fieldLonSize)
	fieldLat := int(adjLat / fieldLatSize)
	remLon := adjLon - float64(fieldLon)*fieldLonSize
	remLat := adjLat - float64(fieldLat)*fieldLatSize
	squareLon := int(remLon / squareLonSize)
	squareLat := int(remLat / squareLatSize)
	out := []byte{
		byte('A' + fieldLon),
		byte('A' + fieldLat),
		byte('0' + squareLon),
		byte('0' + squareLat),
	}
	if precision == 6 {
		subLon := int((remLon - float64(squareLon)*squareLonSize) / subLonSize)
		subLat := int((remLat - float64(squareLat)*squareLatSize) / subLatSize)
		out = append(out, byte('A'+min(subLon, 23)), byte('A'+min(subLat, 23)))
	}
	return string(out), nil
}
