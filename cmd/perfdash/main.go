package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tobert/perfdash/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "perfdash",
		Usage:   "Transaction performance dashboard over OTLP, for humans and AI agents",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(version),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
