// Package main is the entry point for the iampl CLI application.
// It drives the AMPL interactive process through its framed -g protocol.
package main

import (
	"iampl/cli/cmd"
)

// main is the entry point for the iampl CLI application.
func main() {
	cmd.Execute()
}
