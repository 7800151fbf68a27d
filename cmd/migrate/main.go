// migrate applies the embedded SQL migrations: go run ./cmd/migrate -direction up
package main

import (
	"flag"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/db/migrate"
	"github.com/poofware/verification-service/internal/utils"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up or down")
	flag.Parse()

	utils.InitLogger(config.AppName + "-migrate")

	cfg, err := config.Load()
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := migrate.Run(cfg.DBUrl, *direction); err != nil {
		utils.Logger.WithError(err).Fatal("Migration failed")
	}
}
