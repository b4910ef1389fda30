package main

import (
	"os"

	"github.com/inkharmony/inkharmony/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
