// Command cluso-cd inspects reaction networks and evaluates the 1D
// cluster-dynamics system described by a YAML run configuration.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
