package boot

import (
	"context"
	"log"
	"olympia/src/common"
	"olympia/src/config"
	"olympia/src/db"
	"olympia/src/lib"
	awslib "olympia/src/lib/aws"
	"olympia/src/models"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Ticket{},
		&models.TicketPurchase{},
		&models.Media{},
		&models.AuditLog{},
		&models.ReconciliationIssue{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitBroker creates the kafka topics and listens on the reconciliation
// queue until ctx is done.
func InitBroker(ctx context.Context, rec *common.ReconciliationService) {
	if config.KafkaEnabled() {
		results, err := lib.KafkaCreateTopics(config.TOPIC_TICKETS_CHECKED_IN, config.TOPIC_INVENTORY_OVERSELL)
		if err != nil {
			log.Printf("[Kafka] Error creating topics: %s\n", err.Error())
		}
		for _, r := range results {
			log.Printf("[Kafka] topic %s: %s\n", r.Topic, r.Error.String())
		}
	}
	if config.SQSEnabled() {
		awslib.NewSQSConsumer(config.QUEUE_RECONCILIATION, rec.HandleAlertMessage).Listen(ctx)
	}
}

// InitScheduler registers the reconciliation sweep and retries whatever was
// left open by the previous run.
func InitScheduler(rec *common.ReconciliationService) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	sweep := func() {
		n, err := rec.RetryOpen(context.Background())
		if err != nil {
			log.Printf("[Reconciliation] sweep failed: %s\n", err.Error())
			return
		}
		if n > 0 {
			log.Printf("[Reconciliation] sweep resolved %d issue(s)\n", n)
		}
	}
	if _, err := lib.CreateCronJob("reconciliation-sweep", config.RECONCILIATION_SWEEP_FREQ, sweep); err != nil {
		log.Printf("Error running job: %s\n", err.Error())
		return
	}
	go sweep()
	log.Println("Jobs in queue:", len(sched.Jobs()))
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while shutting stopping Scheduler. Check logs for info")
		return
	}
}
