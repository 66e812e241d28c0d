// Command flipwatch fills memory with a known pattern and watches it
// for spontaneous bit flips.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/flipwatch/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
