package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"github.com/vajra-io/vajra/cmd/vajra-dashboard/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewDashboardCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
