// Command automation runs one orchestration pass: remove expired users from
// the vendor dashboard, promote the oldest pending requests into freed slots,
// and reconcile every outcome. Intended to be invoked by a scheduler.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"greenroom/internal/automation"
	"greenroom/internal/cache"
	"greenroom/internal/config"
	"greenroom/internal/database"
	"greenroom/internal/models"
	"greenroom/internal/notifications"
	"greenroom/internal/queue"
	"greenroom/internal/repository"
	"greenroom/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	cache.InitRedis(cfg.RedisURL)

	requestRepo := repository.NewAccessRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if !settingsRepo.GetBool(ctx, models.SettingAutomationEnabled, true) {
		log.Println("Automation is disabled by settings; nothing to do")
		return
	}

	engine := queue.NewEngine(requestRepo, settingsRepo, cfg.MaxSlots, cfg.AccessDurationDays)
	dispatcher := notifications.NewDispatcher(
		notifications.LogEmailSender{},
		notifications.NewWebhookAdminSender(cfg.AdminWebhookURL, cfg.AppName),
	)
	dispatcher.Start(ctx)
	defer dispatcher.Drain(ctx)

	reconciler := service.NewReconciler(requestRepo, auditRepo, engine, dispatcher)
	sweeper := service.NewSweeper(requestRepo, settingsRepo, dispatcher, cfg.ExpiryWarningDays)

	var actor automation.Actor = automation.NewLogActor()
	reporter := automation.NewReporter(cfg.AppWebhookURL, cfg.WebhookSecret)
	pause := time.Duration(cfg.OperationPauseMS) * time.Millisecond

	job := automation.NewJob(engine, sweeper, reconciler, actor, reporter, dispatcher, cache.GetClient(), pause)

	results, err := job.Run(ctx)
	if err != nil {
		if err == automation.ErrRunInProgress {
			log.Println("Another run is already in progress; exiting")
			return
		}
		log.Fatalf("Automation run failed: %v", err)
	}

	if automation.Failed(results) {
		os.Exit(1)
	}
}
