// Command berth watches remote GPU instances come up and manages the SSH
// tunnels that expose their web UIs locally.
package main

import (
	"fmt"
	"os"

	"github.com/rigstead/berth/internal/cmd"
	"github.com/rigstead/berth/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}
