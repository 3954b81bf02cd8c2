// Command twined consumes graph messages from the configured broker
// queue and runs each through the compiled processor pipeline until
// told to shut down. See cli.DaemonCmd for the flag set.
package main

import (
	"fmt"
	"os"

	"twine.work/cli"
)

func main() {
	if err := cli.DaemonCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
