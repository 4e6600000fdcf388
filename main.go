package main

import "github.com/shikya/call-record-ingestor/cmd"

// main is the entry point to the program. Configuration is loaded
// from the file given by --config (if any), the environment and
// command line flags, in increasing order of precedence.
func main() {
	cmd.Execute()
}
