package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/papshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	maxKeyLength = 255
	// inFlightTTL bounds how long a crashed request blocks its key.
	inFlightTTL = time.Minute
)

// Checkout and cancel move stock, so a client retry must never run twice.
var (
	CheckoutReplay = ReplayPolicy{Scope: "checkout", TTL: 7 * 24 * time.Hour}
	CancelReplay   = ReplayPolicy{Scope: "order-cancel", TTL: 7 * 24 * time.Hour}
)

// ReplayPolicy names the key space of one operation and how long its
// responses are kept.
type ReplayPolicy struct {
	Scope string
	TTL   time.Duration
}

// outcome is what the store holds per key. Status zero marks a request that
// is still running.
type outcome struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent requires an Idempotency-Key and runs the handler once per user
// and key. Repeats with the same request get the first response back; a
// different request under a used key is rejected; a repeat that arrives while
// the first is still running gets CONFLICT. Server errors free the key so the
// client can retry. A nil store disables the guard.
func Idempotent(store redis.IdempotencyStore, policy ReplayPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" || len(clientKey) > maxKeyLength {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (1-255 characters)"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(policy.Scope, UserIDFromContext(ctx)+":"+clientKey)
			fp := fingerprint(r, body)

			claimed, err := store.SetNX(ctx, key, encodeOutcome(outcome{Fingerprint: fp}), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable"))
				return
			}
			if !claimed {
				replay(ctx, w, store, key, fp, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			saveCtx := context.WithoutCancel(ctx)
			if capture.code() >= http.StatusInternalServerError {
				if err := store.Del(saveCtx, key); err != nil {
					logg.Error(ctx, "failed to free idempotency key", err)
				}
				return
			}
			done := outcome{
				Fingerprint: fp,
				Status:      capture.code(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := store.Set(saveCtx, key, encodeOutcome(done), policy.TTL); err != nil {
				logg.Error(ctx, "failed to save idempotent response", err)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, store redis.IdempotencyStore, key, fp string, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.ErrNil) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key just finished, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable"))
		return
	}
	var prior outcome
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt idempotency record"))
		return
	}
	switch {
	case prior.Fingerprint != fp:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key was already used for a different request"))
	case prior.Status == 0:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if prior.ContentType != "" {
			w.Header().Set("Content-Type", prior.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(prior.Status)
		_, _ = w.Write(prior.Body)
	}
}

// fingerprint covers the path so one key cannot cancel two different orders.
func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method + " " + r.URL.Path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func encodeOutcome(o outcome) string {
	raw, _ := json.Marshal(o)
	return string(raw)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) code() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
