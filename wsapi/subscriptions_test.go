package wsapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionTable_SubscribeAndUnsubscribe(t *testing.T) {
	tbl := NewSubscriptionTable()

	tbl.Subscribe(TopicBlocks, "client-a")
	tbl.Subscribe(TopicBlocks, "client-b")
	tbl.Subscribe(TopicMempool, "client-a")

	require.ElementsMatch(t, []string{"client-a", "client-b"}, tbl.Subscribers(TopicBlocks))
	require.Equal(t, []string{"client-a"}, tbl.Subscribers(TopicMempool))
	require.Empty(t, tbl.Subscribers(TopicEpochs))

	tbl.Unsubscribe(TopicBlocks, "client-a")
	require.Equal(t, []string{"client-b"}, tbl.Subscribers(TopicBlocks))
}

func TestSubscriptionTable_UnsubscribeAll(t *testing.T) {
	tbl := NewSubscriptionTable()
	tbl.Subscribe(TopicBlocks, "client-a")
	tbl.Subscribe(TopicEpochs, "client-a")
	tbl.Subscribe(TopicMempool, "client-b")

	tbl.UnsubscribeAll("client-a")

	require.Empty(t, tbl.Subscribers(TopicBlocks))
	require.Empty(t, tbl.Subscribers(TopicEpochs))
	require.Equal(t, []string{"client-b"}, tbl.Subscribers(TopicMempool))
}
