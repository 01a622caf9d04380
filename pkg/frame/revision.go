package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Revision names one of the wire layouts found in the field. Devices never
// send it; the codec recognises it from the frame structure.
type Revision string

const (
	// RevisionA is pipe-delimited with 18 fixed fields after the IMEI.
	RevisionA Revision = "A"
	// RevisionB is comma-delimited, tagged DATA/CTRL, GPS optional.
	RevisionB Revision = "B"
	// RevisionC is RevisionB with ignition ahead of the IMEI and no immobilizer.
	RevisionC Revision = "C"
)

// Revisions lists every supported revision.
var Revisions = []Revision{RevisionA, RevisionB, RevisionC}

// ParseRevision accepts "A", "B" or "C" in any case.
func ParseRevision(s string) (Revision, error) {
	switch r := Revision(strings.ToUpper(strings.TrimSpace(s))); r {
	case RevisionA, RevisionB, RevisionC:
		return r, nil
	}
	return "", fmt.Errorf("unknown frame revision %q", s)
}

const (
	tagData    = "DATA"
	tagControl = "CTRL"

	coordScale = 1_000_000
	dopScale   = 100
	speedScale = 100
	voltScale  = 10
)

var (
	ErrMissingStart   = errors.New("frame does not start with '$'")
	ErrMissingTrailer = errors.New("frame has no '*' checksum trailer")
	ErrTooFewFields   = errors.New("frame has too few fields")
	ErrNonNumeric     = errors.New("non-numeric field")
	ErrUnknownLayout  = errors.New("unknown frame layout")
	ErrInvalidRecord  = errors.New("record cannot be encoded")
)

// layout binds a revision to its pure decode function.
type layout struct {
	revision  Revision
	kind      Kind
	delimiter string
	minTokens int
	decode    func(tokens []string, unit BatteryUnit) (*Record, error)
}

var (
	layoutA = &layout{
		revision:  RevisionA,
		kind:      KindData,
		delimiter: "|",
		minTokens: 2 + revisionAFields,
		decode:    decodeRevisionA,
	}
	layoutB = &layout{
		revision:  RevisionB,
		kind:      KindData,
		delimiter: ",",
		minTokens: revisionBTokens,
		decode:    decodeRevisionB,
	}
	layoutC = &layout{
		revision:  RevisionC,
		kind:      KindData,
		delimiter: ",",
		minTokens: revisionCTokens,
		decode:    decodeRevisionC,
	}
	layoutControl = &layout{
		revision:  RevisionB,
		kind:      KindControl,
		delimiter: ",",
		minTokens: controlTokens,
		decode:    decodeControl,
	}
)

// sniff picks the layout of a payload from its delimiter, type tag, token
// count and the shape of the token that follows the tag.
func sniff(payload string) (*layout, []string, error) {
	if strings.Contains(payload, "|") {
		return layoutA, strings.Split(payload, "|"), nil
	}

	tokens := strings.Split(payload, ",")
	if len(tokens) < 2 {
		return nil, nil, ErrTooFewFields
	}

	switch strings.TrimSpace(tokens[1]) {
	case tagControl:
		return layoutControl, tokens, nil
	case tagData:
		// C never has B's token count. Below it, the 0/1 ignition flag C
		// carries where B has the IMEI decides.
		if len(tokens) >= revisionBTokens {
			return layoutB, tokens, nil
		}
		if len(tokens) > 2 && isFlagToken(tokens[2]) {
			return layoutC, tokens, nil
		}
		return layoutB, tokens, nil
	}
	return nil, nil, fmt.Errorf("%w: tag %q", ErrUnknownLayout, tokens[1])
}

func isFlagToken(s string) bool {
	s = strings.TrimSpace(s)
	return s == "0" || s == "1"
}

// Field helpers shared by the revisions.

func parseInt(name, s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrNonNumeric, name, s)
	}
	return v, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrNonNumeric, name, s)
	}
	return v, nil
}

func parseFlag(name, s string) (bool, error) {
	v, err := parseInt(name, s)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// parseSpeed treats an empty token as "not reported".
func parseSpeed(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	v, err := parseInt("speed", s)
	if err != nil {
		return 0, err
	}
	return float64(v) / speedScale, nil
}

// parseCoordinate returns ok=false for tokens that are not integers. The
// comma revisions treat such a coordinate as missing, not as a bad frame.
func parseCoordinate(s string) (float64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(v) / coordScale, true
}

func parseBattery(s string, unit BatteryUnit) (float64, error) {
	v, err := parseFloat("battery", s)
	if err != nil {
		return 0, err
	}
	if unit == BatteryDeciVolts {
		return v / voltScale, nil
	}
	return v, nil
}

// parseLength reads the advisory length prefix; garbage reads as 0.
func parseLength(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

func formatBattery(v *float64, unit BatteryUnit) string {
	if v == nil {
		return "0"
	}
	if unit == BatteryDeciVolts {
		return strconv.FormatInt(round(*v*voltScale), 10)
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatInt(round(*v*coordScale), 10)
}

func formatFlag(b *bool) string {
	if b != nil && *b {
		return "1"
	}
	return "0"
}

func formatScaled(v float64, scale float64) string {
	return strconv.FormatInt(round(v*scale), 10)
}

// commaFix applies the comma revisions' fix rule: both coordinates numeric
// and both non-zero.
func commaFix(rec *Record, latTok, lonTok string) {
	lat, latOK := parseCoordinate(latTok)
	lon, lonOK := parseCoordinate(lonTok)
	if latOK && lonOK && lat != 0 && lon != 0 {
		rec.Latitude = Float(lat)
		rec.Longitude = Float(lon)
		rec.HasGPSFix = true
	}
}

func checkText(name, s string) error {
	if strings.ContainsAny(s, "$*|,") {
		return fmt.Errorf("%w: %s %q contains a frame delimiter", ErrInvalidRecord, name, s)
	}
	return nil
}
