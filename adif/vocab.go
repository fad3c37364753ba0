package adif

import (
	"errors"
	"strings"

	"vcl/logerr"
)

var (
	ErrUnknownBand = errors.New("no ADIF band for token")
	ErrUnknownMode = errors.New("no ADIF mode for token")
)

// Positional correspondence: contestBands[i] is written as adifBands[i].
var (
	contestBands = []string{
		"1800", "3500", "5300", "7000", "10100", "14000", "18068", "21000", "24890", "28000",
		"50", "70", "144", "222", "432", "902", "1.2G", "2.3G", "3.4G", "5.7G",
		"10G", "24G", "47G", "75G", "122G",
	}
	adifBands = []string{
		"160m", "80m", "60m", "40m", "30m", "20m", "17m", "15m", "12m", "10m",
		"6m", "4m", "2m", "1.25m", "70cm", "33cm", "23cm", "13cm", "9cm", "6cm",
		"3cm", "1.25cm", "6mm", "4mm", "2.5mm",
	}
	contestModes = []string{"CW", "PH", "FM", "RY", "DG"}
	adifModes    = []string{"CW", "SSB", "FM", "RTTY", "FT8"}
)

func translate(from, to []string, token string, fold bool) (string, bool) {
	for i, v := range from {
		if v == token || (fold && strings.EqualFold(v, token)) {
			return to[i], true
		}
	}
	return "", false
}

// BandToADIF maps a Cabrillo band token (e.g. "144") to its ADIF band ("2m").
func BandToADIF(band string) (string, error) {
	if out, ok := translate(contestBands, adifBands, strings.TrimSpace(band), false); ok {
		return out, nil
	}
	return "", logerr.Unknown("band", band, ErrUnknownBand)
}

// BandFromADIF maps an ADIF band (case-insensitive) to the Cabrillo token.
func BandFromADIF(band string) (string, error) {
	if out, ok := translate(adifBands, contestBands, strings.TrimSpace(band), true); ok {
		return out, nil
	}
	return "", logerr.Unknown("band", band, ErrUnknownBand)
}

// ModeToADIF maps a Cabrillo mode token (CW/PH/FM/RY/DG) to an ADIF mode.
func ModeToADIF(mode string) (string, error) {
	if out, ok := translate(contestModes, adifModes, strings.TrimSpace(mode), false); ok {
		return out, nil
	}
	return "", logerr.Unknown("mode", mode, ErrUnknownMode)
}

// ModeFromADIF maps an ADIF mode (case-insensitive) to the Cabrillo token.
func ModeFromADIF(mode string) (string, error) {
	if out, ok := translate(adifModes, contestModes, strings.TrimSpace(mode), true); ok {
		return out, nil
	}
	return "", logerr.Unknown("mode", mode, ErrUnknownMode)
}
