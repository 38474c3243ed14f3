package lib

import (
	"log"
	"os"

	"github.com/pusher/pusher-http-go/v5"
)

var pusherClient *pusher.Client

func GetPusherClient() *pusher.Client {
	if pusherClient != nil {
		return pusherClient
	}
	pusherClient = &pusher.Client{
		AppID:   os.Getenv("PUSHER_APP_ID"),
		Key:     os.Getenv("PUSHER_KEY"),
		Secret:  os.Getenv("PUSHER_SECRET"),
		Cluster: os.Getenv("PUSHER_CLUSTER"),
		Secure:  true,
	}
	return pusherClient
}

func PusherTrigger(channel string, event string, data any) error {
	if err := GetPusherClient().Trigger(channel, event, data); err != nil {
		log.Printf("[pusher] Error triggering %s on %s: %s\n", event, channel, err.Error())
		return err
	}
	return nil
}
