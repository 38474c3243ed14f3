package middlewares

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"olympia/src/config"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const idempotencyProcessing = "PROCESSING"

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// A concurrent request holding the same key gets 409. A nil client or a
// redis error lets the request through.
func Idempotency(rd *redis.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.GetHeader("Idempotency-Key")
		if rd == nil || key == "" {
			ctx.Next()
			return
		}
		idemKey := fmt.Sprintf("idempotency:%d:%s", ctx.GetUint("id"), key)

		val, err := rd.Get(ctx, idemKey).Result()
		if err == nil {
			if val == idempotencyProcessing {
				ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "concurrent request"})
				return
			}
			var stored storedResponse
			if err := json.Unmarshal([]byte(val), &stored); err != nil {
				log.Printf("[Idempotency] corrupt entry %s: %s\n", idemKey, err.Error())
				ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request already processed"})
				return
			}
			ctx.Header("X-Idempotency-Hit", "true")
			ctx.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			ctx.Abort()
			return
		} else if err != redis.Nil {
			log.Printf("[Idempotency] redis error: %s\n", err.Error())
			ctx.Next()
			return
		}

		acquired, err := rd.SetNX(ctx, idemKey, idempotencyProcessing, config.IDEMPOTENCY_LOCK_TTL).Result()
		if err != nil || !acquired {
			ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "concurrent request"})
			return
		}

		rec := &bodyRecorder{ResponseWriter: ctx.Writer}
		ctx.Writer = rec
		ctx.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			rd.Del(ctx, idemKey)
			return
		}
		body := rec.buf.Bytes()
		if !json.Valid(body) {
			body = []byte("null")
		}
		b, _ := json.Marshal(storedResponse{Status: status, Body: body})
		if err := rd.Set(ctx, idemKey, string(b), config.IDEMPOTENCY_RESULT_TTL).Err(); err != nil {
			log.Printf("[Idempotency] failed to store response %s: %s\n", idemKey, err.Error())
		}
	}
}
