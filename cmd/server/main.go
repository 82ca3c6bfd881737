package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/brainbox/internal/logging"
	"github.com/dmitrijs2005/brainbox/internal/server"
	"github.com/dmitrijs2005/brainbox/internal/server/config"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	logger := logging.NewJSONLogger(os.Stdout, cfg.SlogLevel())

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "init failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
