// Package main is the entry point for the sipflow SIP call flow correlator.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/sipflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
