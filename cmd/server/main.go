package main

import (
	"context"
	"log"

	"github.com/njarm23/ClaudeMemories/internal/server"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
)

func main() {

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("load .env: %v", err)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
