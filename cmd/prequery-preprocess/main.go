// Command prequery-preprocess resolves the prequeries of a Typst document.
package main

import (
	"os"

	"github.com/prequery/prequery-preprocess/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
