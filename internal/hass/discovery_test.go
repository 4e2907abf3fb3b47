package hass

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

func testIdentity(t *testing.T) config.DeviceIdentity {
	t.Helper()
	id, err := config.NewIdentity(config.Default(), "0.1.0", []string{"none", "fire"})
	require.NoError(t, err)
	return id
}

func TestAnnouncements(t *testing.T) {
	id := testIdentity(t)

	anns, err := Announcements(id)
	require.NoError(t, err)
	require.Len(t, anns, len(id.Entities))

	var topics []string
	for _, a := range anns {
		topics = append(topics, a.Topic)
	}
	want := []string{
		"homeassistant/number/galactic_unicorn/brightness/config",
		"homeassistant/select/galactic_unicorn/effect/config",
		"homeassistant/text/galactic_unicorn/message/config",
		"homeassistant/sensor/galactic_unicorn/clock/config",
		"homeassistant/button/galactic_unicorn/ntp_sync/config",
	}
	if diff := cmp.Diff(want, topics); diff != "" {
		t.Errorf("announcement topics mismatch (-want +got):\n%s", diff)
	}
}

func TestEntity_Select(t *testing.T) {
	id := testIdentity(t)
	anns, err := Announcements(id)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(anns[1].Payload, &got))

	assert.Equal(t, "galactic_unicorn_effect", got["unique_id"])
	assert.Equal(t, "galactic_unicorn/effect/set", got["command_topic"])
	assert.Equal(t, "galactic_unicorn/effect/state", got["state_topic"])
	assert.Equal(t, "galactic_unicorn/availability", got["availability_topic"])
	assert.Equal(t, []any{"none", "fire"}, got["options"])
	assert.NotContains(t, got, "min")

	device, ok := got["device"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"galactic_unicorn"}, device["identifiers"])
	assert.Equal(t, "0.1.0", device["sw_version"])
}

func TestEntity_NumberHasRange(t *testing.T) {
	id := testIdentity(t)
	m := Entity(id, id.Entities[0])

	require.NotNil(t, m.Min)
	require.NotNil(t, m.Max)
	assert.Equal(t, 0, *m.Min)
	assert.Equal(t, 255, *m.Max)
}

func TestEntity_ButtonHasNoStateTopic(t *testing.T) {
	id := testIdentity(t)
	payload, err := json.Marshal(Entity(id, id.Entities[4]))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.NotContains(t, got, "state_topic")
	assert.Equal(t, "galactic_unicorn/system/ntp/sync", got["command_topic"])
}
