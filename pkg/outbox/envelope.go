package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// EnvelopeVersion is stamped on every row written by this build.
const EnvelopeVersion = 1

// ActorRef is the user whose request produced the event. Checkout and
// customer cancels carry the customer; admin status changes carry the admin.
type ActorRef struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role,omitempty"`
}

// PayloadEnvelope wraps an event body in outbox_events.payload and is also
// the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
