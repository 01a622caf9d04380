package app

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/vajra-io/vajra/pkg/frame"
)

func newDecodeCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [FRAME...]",
		Short: "Decode raw frames, read from stdin when no argument is given",
		Example: `  vajractl decode '$66,DATA,887744556677882,1,87,1700000000,12971600,77594600,4250,1,0*1C'
  mosquitto_sub -t 'telematics/+/up' | vajractl decode -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := o.newCodec()
			if err != nil {
				return err
			}
			raws, err := readArgs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			var failed int
			for _, raw := range raws {
				rec, err := codec.Decode(raw, frame.SourceLive)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", raw, err)
					continue
				}
				if o.output == outputJSON {
					data, err := json.Marshal(rec)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					continue
				}
				printTable(cmd.OutOrStdout(), recordTable(rec))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d frames failed to decode", failed, len(raws))
			}
			return nil
		},
	}
}

func recordTable(rec *frame.Record) *uitable.Table {
	t := newTable("FIELD", "VALUE")
	t.AddRow("revision", rec.Revision)
	t.AddRow("kind", rec.Kind)
	t.AddRow("checksum", checksumState(rec))
	if rec.Kind == frame.KindControl {
		t.AddRow("immobilizer", optionalBool(rec.Immobilizer))
		t.AddRow("ignition", optionalBool(rec.Ignition))
		return t
	}
	t.AddRow("imei", rec.IMEI)
	t.AddRow("frame", rec.FrameNumber)
	t.AddRow("time", rec.TimestampUTC())
	if lat, lon, ok := rec.Position(); ok {
		t.AddRow("position", fmt.Sprintf("%.6f, %.6f", lat, lon))
	} else {
		t.AddRow("position", "no fix")
	}
	t.AddRow("speed", fmt.Sprintf("%.2f km/h", rec.SpeedKmh))
	t.AddRow("ignition", optionalBool(rec.Ignition))
	t.AddRow("immobilizer", optionalBool(rec.Immobilizer))
	if rec.Battery != nil {
		t.AddRow("battery", formatBattery(*rec.Battery, rec.BatteryUnit))
	}
	if rec.Revision == frame.RevisionA {
		t.AddRow("operator", fmt.Sprintf("%s (%s)", rec.Operator(), rec.OperatorCode))
		t.AddRow("signal", rec.SignalStrength)
		t.AddRow("mcc/mnc", fmt.Sprintf("%d/%d", rec.MCC, rec.MNC))
		t.AddRow("hdop/pdop", fmt.Sprintf("%.2f/%.2f", rec.HDOP, rec.PDOP))
	}
	return t
}

func checksumState(rec *frame.Record) string {
	if rec.CRCValid {
		return "valid"
	}
	return "INVALID"
}

func optionalBool(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}

func formatBattery(v float64, unit frame.BatteryUnit) string {
	if unit == frame.BatteryPercent {
		return fmt.Sprintf("%.0f%%", v)
	}
	return fmt.Sprintf("%.1f V", v)
}
