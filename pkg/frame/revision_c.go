package frame

import (
	"fmt"
	"strings"
)

// $<len>,DATA,<ign>,<imei>,<battery>,<ts>,<lat*1e6>,<lon*1e6>,<speed*100>
const revisionCTokens = 9

const (
	cIgnition = iota + 2
	cIMEI
	cBattery
	cTimestamp
	cLatitude
	cLongitude
	cSpeed
)

// frameModulus derives a frame number for revision C, which carries none.
const frameModulus = 10000

// decodeRevisionC leaves Immobilizer nil: the layout has no such field and
// the reconciler must not overwrite its state from it.
func decodeRevisionC(tokens []string, unit BatteryUnit) (*Record, error) {
	ignition, err := parseFlag("ignition", tokens[cIgnition])
	if err != nil {
		return nil, err
	}
	battery, err := parseBattery(tokens[cBattery], unit)
	if err != nil {
		return nil, err
	}
	ts, err := parseInt("timestamp", tokens[cTimestamp])
	if err != nil {
		return nil, err
	}
	speed, err := parseSpeed(tokens[cSpeed])
	if err != nil {
		return nil, err
	}

	rec := &Record{
		DeclaredLength: parseLength(tokens[0]),
		IMEI:           strings.TrimSpace(tokens[cIMEI]),
		FrameNumber:    ts % frameModulus,
		Battery:        Float(battery),
		BatteryUnit:    unit,
		Timestamp:      ts,
		SpeedKmh:       speed,
		Ignition:       Bool(ignition),
	}
	commaFix(rec, tokens[cLatitude], tokens[cLongitude])
	return rec, nil
}

func encodeRevisionC(rec *Record, unit BatteryUnit) (string, error) {
	if err := checkText("imei", rec.IMEI); err != nil {
		return "", err
	}

	inner := strings.Join([]string{
		tagData,
		formatFlag(rec.Ignition),
		rec.IMEI,
		formatBattery(rec.Battery, unit),
		fmt.Sprint(rec.Timestamp),
		formatCoordinate(rec.Latitude),
		formatCoordinate(rec.Longitude),
		formatScaled(rec.SpeedKmh, speedScale),
	}, ",")
	return withCommaLength(inner), nil
}
