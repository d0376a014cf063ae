package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lydakis/llmcmd/internal/cli"
	"github.com/lydakis/llmcmd/internal/daemon"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "__daemon" {
		if err := daemon.RunDetached(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "llmcmd daemon: %v\n", err)
			os.Exit(1)
		}
		return
	}

	code := cli.Run(os.Args[1:])
	os.Exit(code)
}
