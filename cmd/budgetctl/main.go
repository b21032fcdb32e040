package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/warp/budget-engine/cli"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// Logs go to stderr so piped tables stay clean.
	app := &cli.App{
		Out:    os.Stdout,
		Format: cli.Formatter{Color: isInteractive()},
		Logger: logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr}),
		DBPath: cfg.DBPath,
	}

	if err := cli.NewRootCmd(app).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
