// Command hrassist is the entry point for the HR policy assistant. It
// provides a CLI (via Cobra) for ingesting policy documents, asking grounded
// questions, chatting with the HR agent, and running the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/hrassist-go/cmd/hrassist/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
