// Package app implements vajractl, the bench tool for tracker frames and
// geofence files.
package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/vajra-io/vajra/pkg/frame"
	"github.com/vajra-io/vajra/pkg/options"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type rootOptions struct {
	codec  *options.CodecOptions
	output string
}

func NewVajractlCommand() *cobra.Command {
	o := &rootOptions{codec: options.NewCodecOptions(), output: outputTable}

	cmd := &cobra.Command{
		Use:           "vajractl",
		Short:         "Inspect and build tracker frames and geofence files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.output != outputTable && o.output != outputJSON {
				return fmt.Errorf("--output must be %q or %q", outputTable, outputJSON)
			}
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	o.codec.AddFlags(fs)
	fs.StringVarP(&o.output, "output", "o", o.output, "Output format ('table' or 'json').")

	cmd.AddCommand(
		newDecodeCommand(o),
		newEncodeCommand(o),
		newChecksumCommand(),
		newZonesCommand(o),
	)
	return cmd
}

func (o *rootOptions) newCodec() (*frame.Codec, error) {
	opts, err := o.codec.ToCodecOptions()
	if err != nil {
		return nil, err
	}
	return frame.NewCodec(opts)
}

func newTable(headers ...any) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	if len(headers) > 0 {
		table.AddRow(headers...)
	}
	return table
}

func printTable(w io.Writer, table *uitable.Table) {
	fmt.Fprintln(w, table)
}

// readArgs returns the positional arguments, or the non-empty lines of in
// when there are none.
func readArgs(args []string, in io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}
