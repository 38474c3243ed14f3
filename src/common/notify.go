package common

import (
	"context"
	"fmt"
	"log"
	"olympia/src/config"
	"olympia/src/lib"
	"olympia/src/models"
	"time"
)

// CheckInNotifier is told about every successful redemption. Implementations
// must not block the caller on network I/O.
type CheckInNotifier interface {
	CheckedIn(ctx context.Context, p *models.TicketPurchase, wasOffline bool)
}

type Notifiers []CheckInNotifier

func (n Notifiers) CheckedIn(ctx context.Context, p *models.TicketPurchase, wasOffline bool) {
	for _, notifier := range n {
		notifier.CheckedIn(ctx, p, wasOffline)
	}
}

func checkInPayload(p *models.TicketPurchase, wasOffline bool) map[string]any {
	payload := map[string]any{
		"purchaseId":     p.ID,
		"redemptionCode": p.RedemptionCode,
		"eventId":        p.EventID,
		"ticketId":       p.TicketID,
		"wasOfflineSync": wasOffline,
	}
	if p.CheckInTime != nil {
		payload["checkInTime"] = p.CheckInTime.Format(time.RFC3339)
	}
	if p.CheckedInBy != nil {
		payload["operatorId"] = *p.CheckedInBy
	}
	return payload
}

// KafkaCheckInNotifier streams check-ins to the tickets-checked-in topic.
type KafkaCheckInNotifier struct{}

func (KafkaCheckInNotifier) CheckedIn(ctx context.Context, p *models.TicketPurchase, wasOffline bool) {
	payload := checkInPayload(p, wasOffline)
	go func() {
		if err := lib.KafkaProduceMessage(config.KAFKA_CHECK_IN_PRODUCER, config.TOPIC_TICKETS_CHECKED_IN, payload); err != nil {
			log.Printf("[CheckIn] kafka publish failed for %s: %s\n", p.RedemptionCode, err.Error())
		}
	}()
}

// PusherCheckInNotifier feeds the live entry dashboard of the event.
type PusherCheckInNotifier struct{}

func (PusherCheckInNotifier) CheckedIn(ctx context.Context, p *models.TicketPurchase, wasOffline bool) {
	payload := checkInPayload(p, wasOffline)
	channel := fmt.Sprintf("event-%d", p.EventID)
	go lib.PusherTrigger(channel, config.PUSHER_EVENT_CHECKED_IN, payload)
}

// DefaultNotifiers wires the notifiers whose backends are configured.
func DefaultNotifiers(verify *VerifyService) Notifiers {
	var n Notifiers
	if verify != nil {
		n = append(n, verify)
	}
	if config.KafkaEnabled() {
		n = append(n, KafkaCheckInNotifier{})
	}
	if config.PusherEnabled() {
		n = append(n, PusherCheckInNotifier{})
	}
	return n
}
