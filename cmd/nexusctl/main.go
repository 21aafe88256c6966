package main

import (
	"fmt"
	"os"

	"github.com/greengold/nexus/cmd/nexusctl/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nexusctl: %v\n", err)
		os.Exit(1)
	}
}
