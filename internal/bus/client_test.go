package bus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/bus/bustest"
	"github.com/loqalabs/voicepay/internal/protocol"
)

func TestPublishSubscribeJSON(t *testing.T) {
	client := bustest.Start(t)
	require.True(t, client.Healthy())

	got := make(chan protocol.UIEvent, 1)
	sub, err := bus.SubscribeJSON(client, protocol.SubjectUIEvent, func(evt protocol.UIEvent) { got <- evt })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, client.PublishJSON(protocol.SubjectUIEvent, protocol.UIEvent{Type: protocol.UISetAmount, Amount: "500"}))
	require.NoError(t, client.Conn().Flush())

	select {
	case evt := <-got:
		assert.Equal(t, protocol.UISetAmount, evt.Type)
		assert.Equal(t, "500", evt.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscribeJSONDropsUndecodable(t *testing.T) {
	client := bustest.Start(t)

	got := make(chan protocol.UIEvent, 2)
	sub, err := bus.SubscribeJSON(client, protocol.SubjectUIEvent, func(evt protocol.UIEvent) { got <- evt })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, client.Conn().Publish(protocol.SubjectUIEvent, []byte("{not json")))
	require.NoError(t, client.PublishJSON(protocol.SubjectUIEvent, protocol.UIEvent{Type: protocol.UIApprove}))
	require.NoError(t, client.Conn().Flush())

	select {
	case evt := <-got:
		assert.Equal(t, protocol.UIApprove, evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
