package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"

	idempotencyTTL = 24 * time.Hour
	// A claim outlives the slowest request it guards.
	claimTTL = 30 * time.Second
)

// idempotencyRecord is either an in-flight claim or a finished response.
type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type idempotencyStore struct {
	client *redis.Client
}

func (s idempotencyStore) load(ctx context.Context, key string) (*idempotencyRecord, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec idempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// claim marks key in flight. It reports false when another request holds it.
func (s idempotencyStore) claim(ctx context.Context, key string) (bool, error) {
	data, _ := json.Marshal(idempotencyRecord{Pending: true})
	return s.client.SetNX(ctx, key, data, claimTTL).Result()
}

func (s idempotencyStore) save(ctx context.Context, key string, rec idempotencyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, idempotencyTTL).Err()
}

func (s idempotencyStore) release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// bodyRecorder keeps a copy of what the handler writes.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// repeated with the same Idempotency-Key by the same caller on the same
// route, and rejects a repeat that arrives while the first is still running.
// It must run after authentication. A nil client disables it.
func IdempotencyMiddleware(redisClient *redis.Client, log logrus.FieldLogger) gin.HandlerFunc {
	store := idempotencyStore{client: redisClient}

	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if redisClient == nil || key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(c, key)
		entry := log.WithField("idempotency_key", key)

		rec, err := store.load(ctx, cacheKey)
		if err != nil {
			// Redis is down: serve the request without replay protection.
			entry.WithError(err).Warn("idempotency lookup failed")
			c.Next()
			return
		}
		if rec != nil && !rec.Pending {
			c.Header(replayHeader, "true")
			c.Data(rec.StatusCode, rec.ContentType, rec.Body)
			c.Abort()
			return
		}
		if rec != nil {
			inProgress(c)
			return
		}

		claimed, err := store.claim(ctx, cacheKey)
		if err != nil {
			entry.WithError(err).Warn("idempotency claim failed")
			c.Next()
			return
		}
		if !claimed {
			inProgress(c)
			return
		}

		w := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Server errors are not kept so the client can retry with the same key.
		status := w.Status()
		if status >= http.StatusInternalServerError {
			if err := store.release(ctx, cacheKey); err != nil {
				entry.WithError(err).Warn("idempotency release failed")
			}
			return
		}

		err = store.save(ctx, cacheKey, idempotencyRecord{
			StatusCode:  status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			entry.WithError(err).Warn("idempotency store failed")
			_ = store.release(ctx, cacheKey)
		}
	}
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func inProgress(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusConflict, gin.H{
		"error": gin.H{
			"kind":    "CONFLICT",
			"code":    "IDEMPOTENCY_IN_PROGRESS",
			"message": "a request with this idempotency key is still being processed",
		},
	})
}

func idempotencyCacheKey(c *gin.Context, key string) string {
	actor := "anonymous"
	if a, ok := Actor(c); ok {
		actor = a.UserID
	}
	return "idempotency:" + actor + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key
}
