package frame

import (
	"strings"
)

// $<len>,CTRL,<immobilizer>,<ignition>
const controlTokens = 4

func decodeControl(tokens []string, _ BatteryUnit) (*Record, error) {
	immobilizer, err := parseFlag("immobilizer", tokens[2])
	if err != nil {
		return nil, err
	}
	ignition, err := parseFlag("ignition", tokens[3])
	if err != nil {
		return nil, err
	}
	return &Record{
		DeclaredLength: parseLength(tokens[0]),
		Immobilizer:    Bool(immobilizer),
		Ignition:       Bool(ignition),
	}, nil
}

func encodeControl(immobilizer, ignition bool) string {
	return withCommaLength(strings.Join([]string{
		tagControl,
		formatFlag(&immobilizer),
		formatFlag(&ignition),
	}, ","))
}
