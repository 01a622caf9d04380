package main

import (
	"os"

	"github.com/vajra-io/vajra/cmd/vajractl/app"
)

func main() {
	if err := app.NewVajractlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
