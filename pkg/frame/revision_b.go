package frame

import (
	"fmt"
	"strings"
)

// $<len>,DATA,<imei>,<seq>,<battery>,<ts>,<lat*1e6>,<lon*1e6>,<speed*100>,<ign>,<immob>
const revisionBTokens = 11

const (
	bIMEI = iota + 2
	bSequence
	bBattery
	bTimestamp
	bLatitude
	bLongitude
	bSpeed
	bIgnition
	bImmobilizer
)

func decodeRevisionB(tokens []string, unit BatteryUnit) (*Record, error) {
	seq, err := parseInt("sequence", tokens[bSequence])
	if err != nil {
		return nil, err
	}
	battery, err := parseBattery(tokens[bBattery], unit)
	if err != nil {
		return nil, err
	}
	ts, err := parseInt("timestamp", tokens[bTimestamp])
	if err != nil {
		return nil, err
	}
	speed, err := parseSpeed(tokens[bSpeed])
	if err != nil {
		return nil, err
	}
	ignition, err := parseFlag("ignition", tokens[bIgnition])
	if err != nil {
		return nil, err
	}
	immobilizer, err := parseFlag("immobilizer", tokens[bImmobilizer])
	if err != nil {
		return nil, err
	}

	rec := &Record{
		DeclaredLength: parseLength(tokens[0]),
		IMEI:           strings.TrimSpace(tokens[bIMEI]),
		FrameNumber:    seq,
		Battery:        Float(battery),
		BatteryUnit:    unit,
		Timestamp:      ts,
		SpeedKmh:       speed,
		Ignition:       Bool(ignition),
		Immobilizer:    Bool(immobilizer),
	}
	commaFix(rec, tokens[bLatitude], tokens[bLongitude])
	return rec, nil
}

func encodeRevisionB(rec *Record, unit BatteryUnit) (string, error) {
	if err := checkText("imei", rec.IMEI); err != nil {
		return "", err
	}

	inner := strings.Join([]string{
		tagData,
		rec.IMEI,
		fmt.Sprint(rec.FrameNumber),
		formatBattery(rec.Battery, unit),
		fmt.Sprint(rec.Timestamp),
		formatCoordinate(rec.Latitude),
		formatCoordinate(rec.Longitude),
		formatScaled(rec.SpeedKmh, speedScale),
		formatFlag(rec.Ignition),
		formatFlag(rec.Immobilizer),
	}, ",")
	return withCommaLength(inner), nil
}

// withCommaLength prefixes the inner string with the length the reference
// simulator computes: len(inner) + 3.
func withCommaLength(inner string) string {
	return fmt.Sprintf("%d,%s", len(inner)+3, inner)
}
