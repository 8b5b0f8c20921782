// Package main is the entry point of the match gateway: an HTTP front for
// the regional auth, match and payment backends that keeps sessions,
// signup state and follow/contact sets in a shared cache.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
