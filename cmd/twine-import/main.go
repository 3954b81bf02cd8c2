// Command twine-import runs a single file (or stdin) through the
// registry a running twined daemon would dispatch against: useful for
// one-off imports, update-mode invocations, and schema initialisation
// (`-S`) without standing up a broker. See cli.ImportCmd for the flag
// set.
package main

import (
	"fmt"
	"os"

	"twine.work/cli"
)

func main() {
	if err := cli.ImportCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
