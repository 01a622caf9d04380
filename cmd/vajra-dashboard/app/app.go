package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/component-base/cli/globalflag"

	"github.com/vajra-io/vajra/cmd/vajra-dashboard/app/options"
	"github.com/vajra-io/vajra/pkg/log"
)

const (
	commandName = "vajra-dashboard"
	commandDesc = `The Vajra dashboard follows one vehicle tracker. It merges live MQTT
telemetry with a simulated fallback into a single vehicle snapshot, enforces
geofences by engaging the immobilizer on exit and serves the snapshot and
the command API over HTTP.`
)

func NewDashboardCommand(ctx context.Context) *cobra.Command {
	opts := options.NewDashboardOptions()
	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Launch the Vajra vehicle dashboard",
		Long:         commandDesc,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(cmd.Flags()); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			log.Init(opts.Log)
			defer log.Sync()

			cfg, err := opts.Config()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			d, err := cfg.NewDashboard(ctx)
			if err != nil {
				log.Error(err, "failed to create dashboard")
				return err
			}

			if err := d.Run(ctx); err != nil {
				log.Error(err, "dashboard stopped with error")
				return err
			}
			return nil
		},
	}

	fs := cmd.Flags()
	namedfs := opts.Flags()
	globalflag.AddGlobalFlags(namedfs.FlagSet("global"), cmd.Name())
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}

	return cmd
}
