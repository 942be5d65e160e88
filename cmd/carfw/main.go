// carfw downloads and reassembles infotainment head-unit firmware.
package main

import (
	"fmt"
	"os"

	"github.com/rescale-labs/carfw/internal/cli"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	cli.Version = Version

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "carfw: %v\n", err)
		os.Exit(1)
	}
}
