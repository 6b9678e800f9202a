// Command difftest runs differential tests of the kefir C compiler.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kefir-c/difftest/internal/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		if errors.Is(err, cmd.ErrInterrupted) {
			fmt.Fprintln(os.Stderr, "Interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "difftest: %v\n", err)
		}
		os.Exit(-1)
	}
}
