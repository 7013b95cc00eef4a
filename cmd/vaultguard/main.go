// Command vaultguard signs, processes, and audits guarded vault instructions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/vaultguard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vaultguard: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
