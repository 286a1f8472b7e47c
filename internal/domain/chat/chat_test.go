package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/domain/chat"
	"github.com/notyesbut/shardregistry/internal/record"
)

func TestValidateAllowsAFreshMessageWithNoExplicitID(t *testing.T) {
	h := chat.New()
	// No pre-set id, no reply: must not be rejected as a self-reply.
	err := h.Validate(&record.Record{Data: chat.Payload{ConversationID: "c1", SenderID: "s1"}})
	assert.NoError(t, err)
}

func TestValidateRejectsSelfReply(t *testing.T) {
	h := chat.New()
	err := h.Validate(&record.Record{ID: "m1", Data: chat.Payload{ConversationID: "c1", SenderID: "s1", ReplyToID: "m1"}})
	require.Error(t, err)
}

func TestValidateRequiresConversationAndSender(t *testing.T) {
	h := chat.New()
	err := h.Validate(&record.Record{Data: chat.Payload{SenderID: "s1"}})
	require.Error(t, err)
	err = h.Validate(&record.Record{Data: chat.Payload{ConversationID: "c1"}})
	require.Error(t, err)
}

func TestTimeBucketKeyIncludesConversation(t *testing.T) {
	h := chat.New()
	r := &record.Record{ID: "m1", Timestamp: 1700000000000, Data: chat.Payload{ConversationID: "c1", SenderID: "s1"}}
	keys := h.ExtractIndexKeys(r)
	require.Len(t, keys[chat.IndexTimeBucket], 1)
	assert.Contains(t, keys[chat.IndexTimeBucket][0], "c1:")
}
