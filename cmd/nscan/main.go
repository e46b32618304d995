// Command nscan scans daily bar exports for N patterns and consolidation breakouts.
package main

import (
	"fmt"
	"os"

	"nscan/internal/cli"
	"nscan/internal/config"
	"nscan/internal/logging"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		cfg = config.Default()
	}

	logger := logging.NewLoggerWithConfig(cfg.Log)

	if err := cli.NewRootCmd(cfg, logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
