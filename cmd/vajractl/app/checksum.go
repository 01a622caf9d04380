package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vajra-io/vajra/pkg/frame"
)

func newChecksumCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checksum PAYLOAD...",
		Short: "Compute the XOR checksum of frame payloads",
		Long: `Compute the XOR checksum of frame payloads. A complete frame ($...*XX) is
checked against its trailer; anything else is treated as a bare payload and
printed as a sealed frame.`,
		Example: `  vajractl checksum '11,CTRL,1,0'
  vajractl checksum '$11,CTRL,1,0*24'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := newTable("INPUT", "CHECKSUM", "RESULT")
			var mismatched int
			for _, arg := range args {
				payload, trailer, isFrame := splitFrame(arg)
				crc := frame.FormatChecksum(frame.Checksum(payload))
				switch {
				case !isFrame:
					t.AddRow(arg, crc, "$"+payload+"*"+crc)
				case strings.EqualFold(trailer, crc):
					t.AddRow(arg, crc, "ok")
				default:
					mismatched++
					t.AddRow(arg, crc, fmt.Sprintf("MISMATCH (trailer %s)", trailer))
				}
			}
			printTable(cmd.OutOrStdout(), t)
			if mismatched > 0 {
				return fmt.Errorf("%d frame(s) with a wrong checksum", mismatched)
			}
			return nil
		},
	}
}

// splitFrame separates $payload*XX into its parts.
func splitFrame(s string) (payload, trailer string, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "$") {
		return s, "", false
	}
	i := strings.LastIndexByte(s, '*')
	if i < 0 {
		return s[1:], "", false
	}
	return s[1:i], s[i+1:], true
}
