package main

import (
	"fmt"
	"os"

	"veto/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vetoctl:", err)
		os.Exit(1)
	}
}
