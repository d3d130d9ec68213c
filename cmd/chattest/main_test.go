package main

import (
	"encoding/json"
	"testing"

	"hearth/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbound(t *testing.T) {
	t.Run("private message", func(t *testing.T) {
		raw, err := outbound(3, target{to: 9}, 1, 4)
		require.NoError(t, err)

		var env notifications.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, notifications.EventPrivateMessage, env.Event)

		var p notifications.PrivateMessagePayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, uint(9), p.To)
		assert.Equal(t, uint(3), p.From)
		assert.Equal(t, "Stress test message 4 from client 1", p.Content)
	})

	t.Run("group wins over recipient", func(t *testing.T) {
		raw, err := outbound(3, target{to: 9, groupID: 2}, 0, 1)
		require.NoError(t, err)

		var env notifications.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, notifications.EventGroupMessage, env.Event)

		var p notifications.GroupMessagePayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, uint(2), p.GroupID)
	})
}
