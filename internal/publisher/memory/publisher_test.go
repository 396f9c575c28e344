package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shotapi/internal/capture"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "captures", capture.Record{Key: "k1", Status: capture.StatusMiss})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "captures", msgs[0].Topic)

	msgs[0].Topic = "modified"
	assert.Equal(t, "captures", pub.Messages()[0].Topic, "Messages returns a copy")

	recs := pub.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "k1", recs[0].Key)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("unavailable"))
	_, err := pub.Publish(context.Background(), "captures", "x")
	require.Error(t, err)
	assert.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "captures", "x")
	require.NoError(t, err)
}
