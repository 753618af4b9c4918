// Equity research service: HTTP API, queue workers and the multi-analyst
// research pipelines, plus one-shot stock and sector commands.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
