// Package chat implements the chat domain specialization (spec.md §4.4):
// conversationId, senderId and time-bucket indices, plus threading
// invariant validation.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

const (
	IndexConversation = "conversationId"
	IndexSender       = "senderId"
	IndexTimeBucket   = "timeBucket"
)

// Payload is the domain-shaped data a chat message record carries.
type Payload struct {
	ConversationID string
	SenderID       string
	ReplyToID      string // empty if this message starts the thread
}

type Hooks struct{}

func New() *Hooks { return &Hooks{} }

func (Hooks) Domain() record.Domain { return record.DomainChat }

func (Hooks) RequiredIndices() []string {
	return []string{IndexConversation, IndexSender, IndexTimeBucket}
}

// Validate enforces the threading invariant: every message belongs to a
// conversation and, if it replies to another message, does not reply to
// itself.
func (Hooks) Validate(r *record.Record) error {
	p, ok := r.Data.(Payload)
	if !ok {
		return xerrors.New(xerrors.InvalidConfiguration, "chat record data must be chat.Payload")
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return xerrors.New(xerrors.InvalidConfiguration, "chat record requires a conversationId")
	}
	if strings.TrimSpace(p.SenderID) == "" {
		return xerrors.New(xerrors.InvalidConfiguration, "chat record requires a senderId")
	}
	if p.ReplyToID != "" && p.ReplyToID == r.ID {
		return xerrors.New(xerrors.InvalidConfiguration, "chat record cannot reply to itself")
	}
	return nil
}

func (Hooks) ExtractIndexKeys(r *record.Record) map[string][]string {
	p, ok := r.Data.(Payload)
	if !ok {
		return nil
	}
	bucket := time.UnixMilli(r.Timestamp).UTC().Format("2006-01-02T15")
	return map[string][]string{
		IndexConversation: {p.ConversationID},
		IndexSender:       {p.SenderID},
		IndexTimeBucket:   {fmt.Sprintf("%s:%s", p.ConversationID, bucket)},
	}
}
