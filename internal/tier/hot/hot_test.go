package hot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/tier/hot"
)

func TestPrepareStoreAndAfterRetrieveArePassthroughs(t *testing.T) {
	h := hot.New(config.DefaultHot())
	r := &record.Record{ID: "r1"}

	out, err := h.PrepareStore(context.Background(), r)
	require.NoError(t, err)
	assert.Same(t, r, out)

	out, err = h.AfterRetrieve(context.Background(), r)
	require.NoError(t, err)
	assert.Same(t, r, out)
}

func TestFlushIsANoop(t *testing.T) {
	h := hot.New(config.DefaultHot())
	assert.NoError(t, h.Flush(context.Background()))
}

func TestCapabilitiesReportNoCompressionOrArchival(t *testing.T) {
	h := hot.New(config.DefaultHot())
	caps := h.Capabilities()
	assert.True(t, caps.SupportsFullText)
	assert.False(t, caps.SupportsCompression)
	assert.False(t, caps.SupportsArchival)
	assert.Equal(t, record.TierHot, h.Tier())
}
