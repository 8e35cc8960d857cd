package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/network"
	"tasksync/internal/queue"
	"tasksync/internal/remote"
	"tasksync/internal/repository"
	"tasksync/internal/service"
	"tasksync/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	taskRepo := repository.NewTaskRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	opQueue := queue.New(db)

	sess := session.NewStatic(cfg.UserID, cfg.APIToken)
	client := remote.NewClient(cfg.APIBaseURL, sess)

	monitor := network.NewProbe(cfg.APIBaseURL, cfg.SyncInterval/2, nil)
	monitor.Start()
	defer monitor.Stop()

	syncSvc := service.NewSyncService(taskRepo, categoryRepo, opQueue, client, monitor, sess, nil)
	syncSvc.SetPageSize(cfg.PageSize)

	// Fresh pull on boot when possible; offline this is a no-op.
	if err := syncSvc.Sync(ctx); err != nil {
		log.Printf("initial sync: %v", err)
	}

	scheduler := service.NewScheduler(time.Local)
	if _, err := scheduler.ScheduleInterval(cfg.SyncInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := syncSvc.ApplyQueue(jobCtx); err != nil {
			log.Printf("queue apply: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule sync: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("tasksync daemon started.")
	<-ctx.Done()
	log.Println("Shutdown complete.")
}
