package main

import (
	"context"
	"net/http"

	cron "github.com/robfig/cron/v3"

	"github.com/poofware/verification-service/internal/app"
	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/utils"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	handler, svcs := application.Handler()

	//----------------------------------------------------------------------
	// Setup daily cleanup via cron
	//----------------------------------------------------------------------
	c := cron.New()

	// refresh tokens
	_, schErr1 := c.AddFunc("0 3 * * *", func() {
		if e := svcs.TokenCleanup.CleanupDaily(context.Background()); e != nil {
			utils.Logger.WithError(e).Error("Scheduled token cleanup failed")
		}
	})
	if schErr1 != nil {
		utils.Logger.WithError(schErr1).Fatal("Failed to schedule token cleanup job")
	}

	// rate limit counters
	_, schErr2 := c.AddFunc("10 3 * * *", func() {
		if e := svcs.RateLimitCleanup.CleanupDaily(context.Background()); e != nil {
			utils.Logger.WithError(e).Error("Scheduled rate limit counter cleanup failed")
		}
	})
	if schErr2 != nil {
		utils.Logger.WithError(schErr2).Fatal("Failed to schedule rate limit counter cleanup job")
	}

	c.Start()
	defer c.Stop()

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, handler); err != nil {
		utils.Logger.Fatal("Failed to start server:", err)
	}
}
