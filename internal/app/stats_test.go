package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsSnapshotJSON(t *testing.T) {
	var s Stats
	s.Accepted.Add(2)
	s.MQTTFailed.Add(1)

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var got map[string]int64
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, int64(2), got["accepted"])
	assert.Equal(t, int64(1), got["mqtt_failed"])
	assert.Contains(t, got, "rate_limited")
}
