package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// const dsn = "host=localhost user=postgres password=password dbname=olympia port=5432 sslmode=disable TimeZone=Asia/Manila"

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

const (
	TOPIC_TICKETS_CHECKED_IN  = "tickets-checked-in"
	TOPIC_INVENTORY_OVERSELL  = "inventory-oversell"
	QUEUE_RECONCILIATION      = "InventoryReconciliation"
	KAFKA_CHECK_IN_PRODUCER   = "check_in_producer"
	KAFKA_INVENTORY_PRODUCER  = "inventory_producer"
	PUSHER_EVENT_CHECKED_IN   = "ticket-checked-in"
	VERIFY_CACHE_TTL          = 60 * time.Second
	IDEMPOTENCY_LOCK_TTL      = 10 * time.Second
	IDEMPOTENCY_RESULT_TTL    = 24 * time.Hour
	RECONCILIATION_SWEEP_FREQ = 2 * time.Minute
)

func JWTSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

func APIEnv() string {
	return os.Getenv("API_ENV")
}

func APIPort() string {
	if p := os.Getenv("API_PORT"); p != "" {
		return ":" + p
	}
	return ":9090"
}

// MediaBucket selects the S3 evidence store when set.
func MediaBucket() string {
	return os.Getenv("S3_MEDIA_BUCKET")
}

// MediaDir is the local evidence directory used when no bucket is set.
func MediaDir() string {
	if d := os.Getenv("MEDIA_DIR"); d != "" {
		return d
	}
	return "media"
}

func KafkaEnabled() bool {
	return os.Getenv("KAFKA_BROKER") != ""
}

func PusherEnabled() bool {
	return os.Getenv("PUSHER_APP_ID") != ""
}

func RedisEnabled() bool {
	return os.Getenv("REDIS_HOST") != ""
}

func SQSEnabled() bool {
	b, _ := strconv.ParseBool(os.Getenv("SQS_ENABLE"))
	return b
}
