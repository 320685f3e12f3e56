package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the handler a message is routed to. The set is closed;
// unknown kinds read back from the database are preserved so the dispatcher
// can acknowledge them as forward-compatible no-ops.
type Kind string

const (
	KindResearch  Kind = "research"
	KindStructure Kind = "structure"
	KindFactcheck Kind = "factcheck"
	KindFinalize  Kind = "finalize"
	KindPublish   Kind = "publish"
	KindRefresh   Kind = "refresh"
	KindCrosspost Kind = "crosspost"
)

var allKinds = []Kind{
	KindResearch,
	KindStructure,
	KindFactcheck,
	KindFinalize,
	KindPublish,
	KindRefresh,
	KindCrosspost,
}

var kindSet = func() map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(allKinds))
	for _, kind := range allKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// AllKinds returns the ordered list of known message kinds.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := kindSet[normalized]
	return normalized, ok
}

// Known reports whether the kind belongs to the closed set.
func (k Kind) Known() bool {
	_, ok := kindSet[k]
	return ok
}

// ItemPayload is the body shared by all message kinds: enough identifiers to
// reload the relevant workflow or dedup context from the state store.
type ItemPayload struct {
	ItemID string `json:"item_id"`
}

// Message is a typed unit of work awaiting delivery.
type Message struct {
	Kind    Kind
	Payload json.RawMessage
}

// NewMessage builds a message with a JSON-encoded payload.
func NewMessage(kind Kind, payload any) (Message, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode payload: %w", err)
	}
	return Message{Kind: kind, Payload: encoded}, nil
}

// ItemPayload decodes the message body into the shared payload shape.
func (m Message) ItemPayload() (ItemPayload, error) {
	var payload ItemPayload
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		return ItemPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.ItemID) == "" {
		return ItemPayload{}, fmt.Errorf("payload missing item_id")
	}
	return payload, nil
}
