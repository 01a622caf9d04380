package frame

import (
	"fmt"
	"math"
	"strings"
)

// revisionAFields is the number of fields after <len>|<imei>.
const revisionAFields = 18

// Field positions after <len>|<imei>.
const (
	aPacketStatus = iota
	aFrameNumber
	aOperator
	aSignal
	aMCC
	aMNC
	aFixStatus
	aLatitude
	aNSIndicator
	aLongitude
	aEWIndicator
	aHDOP
	aPDOP
	aSpeed
	aIgnition
	aImmobilizer
	aVoltage
	aTimestamp
)

// decodeRevisionA maps
//
//	<len>|<imei>|packetStatus|frameNumber|operator|signal|mcc|mnc|fixStatus|
//	lat*1e6|nsInd|lon*1e6|ewInd|hdop*100|pdop*100|speed*100|ignition|
//	immobilizer|voltage|timestamp
//
// Coordinates travel as magnitude plus hemisphere indicator (0 = N/E).
func decodeRevisionA(tokens []string, unit BatteryUnit) (*Record, error) {
	f := tokens[2:]

	ints := make(map[int]int64, revisionAFields)
	for _, idx := range []int{
		aPacketStatus, aFrameNumber, aSignal, aMCC, aMNC, aFixStatus,
		aLatitude, aNSIndicator, aLongitude, aEWIndicator,
		aHDOP, aPDOP, aSpeed, aTimestamp,
	} {
		v, err := parseInt(revisionAFieldNames[idx], f[idx])
		if err != nil {
			return nil, err
		}
		ints[idx] = v
	}

	ignition, err := parseFlag("ignition", f[aIgnition])
	if err != nil {
		return nil, err
	}
	immobilizer, err := parseFlag("immobilizer", f[aImmobilizer])
	if err != nil {
		return nil, err
	}
	battery, err := parseBattery(f[aVoltage], unit)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		DeclaredLength: parseLength(tokens[0]),
		IMEI:           strings.TrimSpace(tokens[1]),
		PacketStatus:   int(ints[aPacketStatus]),
		FrameNumber:    ints[aFrameNumber],
		OperatorCode:   strings.TrimSpace(f[aOperator]),
		SignalStrength: int(ints[aSignal]),
		MCC:            int(ints[aMCC]),
		MNC:            int(ints[aMNC]),
		FixStatus:      int(ints[aFixStatus]),
		HDOP:           float64(ints[aHDOP]) / dopScale,
		PDOP:           float64(ints[aPDOP]) / dopScale,
		SpeedKmh:       float64(ints[aSpeed]) / speedScale,
		Ignition:       Bool(ignition),
		Immobilizer:    Bool(immobilizer),
		Battery:        Float(battery),
		BatteryUnit:    unit,
		Timestamp:      ints[aTimestamp],
	}

	lat := float64(ints[aLatitude]) / coordScale
	lon := float64(ints[aLongitude]) / coordScale
	if ints[aNSIndicator] == 1 {
		lat = -math.Abs(lat)
	}
	if ints[aEWIndicator] == 1 {
		lon = -math.Abs(lon)
	}
	if rec.FixStatus == 1 && !(lat == 0 && lon == 0) {
		rec.Latitude = Float(lat)
		rec.Longitude = Float(lon)
		rec.HasGPSFix = true
	}

	return rec, nil
}

var revisionAFieldNames = [revisionAFields]string{
	"packetStatus", "frameNumber", "operator", "signalStrength", "mcc", "mnc",
	"fixStatus", "latitude", "nsIndicator", "longitude", "ewIndicator",
	"hdop", "pdop", "speed", "ignition", "immobilizer", "voltage", "timestamp",
}

// encodeRevisionA is the inverse of decodeRevisionA. The length prefix is
// the length of the joined field string, as the reference simulator wrote it.
func encodeRevisionA(rec *Record, unit BatteryUnit) (string, error) {
	if err := checkText("imei", rec.IMEI); err != nil {
		return "", err
	}
	if err := checkText("operator", rec.OperatorCode); err != nil {
		return "", err
	}

	operator := rec.OperatorCode
	if operator == "" {
		operator = "00"
	}

	fix, lat, lon, ns, ew := 0, 0.0, 0.0, "0", "0"
	if rec.Latitude != nil && rec.Longitude != nil {
		fix, lat, lon = 1, *rec.Latitude, *rec.Longitude
		if lat < 0 {
			ns = "1"
		}
		if lon < 0 {
			ew = "1"
		}
	}

	fields := strings.Join([]string{
		fmt.Sprint(rec.PacketStatus),
		fmt.Sprint(rec.FrameNumber),
		operator,
		fmt.Sprint(rec.SignalStrength),
		fmt.Sprint(rec.MCC),
		fmt.Sprint(rec.MNC),
		fmt.Sprint(fix),
		formatScaled(math.Abs(lat), coordScale),
		ns,
		formatScaled(math.Abs(lon), coordScale),
		ew,
		formatScaled(rec.HDOP, dopScale),
		formatScaled(rec.PDOP, dopScale),
		formatScaled(rec.SpeedKmh, speedScale),
		formatFlag(rec.Ignition),
		formatFlag(rec.Immobilizer),
		formatBattery(rec.Battery, unit),
		fmt.Sprint(rec.Timestamp),
	}, "|")

	return fmt.Sprintf("%d|%s|%s", len(fields), rec.IMEI, fields), nil
}
