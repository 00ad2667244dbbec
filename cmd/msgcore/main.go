package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"

	"msgcore/internal/app"
	"msgcore/pkg/config"
	"msgcore/pkg/logger"
	"msgcore/pkg/shutdown"
)

func main() {
	_ = godotenv.Load(".env")

	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "database path (overrides config)")
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Init("info")
		shutdown.Abort("load config", err, "")
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}

	logger.Init(cfg.Logging.Level)

	a, err := app.New(&cfg)
	if err != nil {
		shutdown.Abort("startup", err, cfg.Server.DBPath)
	}

	ctx, cancel := shutdown.SignalContext(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("run", err, cfg.Server.DBPath)
	}
}
