package main

import (
	"context"
	"fmt"
	"os"

	"github.com/njarm23/ClaudeMemories/internal/cli"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
)

func main() {
	_ = config.LoadDotEnv()

	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
