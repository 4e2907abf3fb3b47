package config

import (
	"errors"
	"fmt"
	"strings"
)

// MaxTopicLen bounds every topic string the device builds. Topics are
// constructed once at boot, so exceeding it is a configuration error.
const MaxTopicLen = 128

// ErrTopicTooLong is returned when a derived topic exceeds MaxTopicLen.
var ErrTopicTooLong = errors.New("config: topic exceeds maximum length")

// Entity components understood by Home Assistant MQTT discovery.
const (
	ComponentNumber = "number"
	ComponentSelect = "select"
	ComponentText   = "text"
	ComponentSensor = "sensor"
	ComponentButton = "button"
)

// TopicSet is the fixed set of topics the device uses, derived from the base topic.
type TopicSet struct {
	Availability    string
	ClockState      string
	EffectSet       string
	EffectState     string
	BrightnessSet   string
	BrightnessState string
	Message         string
	MessageState    string
	ButtonSet       string
	NTPSync         string
	ColorSet        string
	ColorState      string
}

// Subscriptions returns the inbound topics the session subscribes to.
func (t TopicSet) Subscriptions() []string {
	return []string{t.EffectSet, t.BrightnessSet, t.Message, t.ButtonSet, t.NTPSync, t.ColorSet}
}

// Entity describes one capability exposed to the automation hub.
type Entity struct {
	Component    string
	ObjectID     string
	Name         string
	Icon         string
	CommandTopic string
	StateTopic   string
	Options      []string
	Min, Max     int
}

// UniqueID returns the hub-wide unique id of the entity.
func (e Entity) UniqueID(deviceID string) string {
	return deviceID + "_" + e.ObjectID
}

// DeviceIdentity is the immutable identity of the device, built once at boot
// and passed by value to every component that needs it.
type DeviceIdentity struct {
	DeviceID        string
	Name            string
	Manufacturer    string
	Model           string
	SWVersion       string
	BaseTopic       string
	DiscoveryPrefix string
	Topics          TopicSet
	Entities        []Entity
}

// DiscoveryTopic returns the discovery config topic for an entity:
// <prefix>/<component>/<device_id>/<object_id>/config
func (d DeviceIdentity) DiscoveryTopic(e Entity) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", d.DiscoveryPrefix, e.Component, d.DeviceID, e.ObjectID)
}

// NewIdentity derives the DeviceIdentity from configuration.
//
// Parameters:
//   - cfg: Validated configuration
//   - version: Firmware version reported to the hub
//   - effects: Selectable effect names, offered as options of the effect selector
//
// Returns:
//   - DeviceIdentity: Identity with every topic precomputed
//   - error: ErrTopicTooLong if any derived topic exceeds MaxTopicLen
func NewIdentity(cfg *Config, version string, effects []string) (DeviceIdentity, error) {
	base := strings.TrimSuffix(cfg.MQTT.BaseTopic, "/")
	topics := TopicSet{
		Availability:    base + "/availability",
		ClockState:      base + "/clock/state",
		EffectSet:       base + "/effect/set",
		EffectState:     base + "/effect/state",
		BrightnessSet:   base + "/brightness/set",
		BrightnessState: base + "/brightness/state",
		Message:         base + "/message",
		MessageState:    base + "/message/state",
		ButtonSet:       base + "/button/set",
		NTPSync:         base + "/system/ntp/sync",
		ColorSet:        base + "/rgb/set",
		ColorState:      base + "/rgb/state",
	}

	id := DeviceIdentity{
		DeviceID:        cfg.Device.ID,
		Name:            cfg.Device.Name,
		Manufacturer:    cfg.Device.Manufacturer,
		Model:           cfg.Device.Model,
		SWVersion:       version,
		BaseTopic:       base,
		DiscoveryPrefix: strings.TrimSuffix(cfg.MQTT.DiscoveryPrefix, "/"),
		Topics:          topics,
		Entities: []Entity{
			{
				Component:    ComponentNumber,
				ObjectID:     "brightness",
				Name:         "Brightness",
				Icon:         "mdi:brightness-6",
				CommandTopic: topics.BrightnessSet,
				StateTopic:   topics.BrightnessState,
				Min:          0,
				Max:          255,
			},
			{
				Component:    ComponentSelect,
				ObjectID:     "effect",
				Name:         "Effect",
				Icon:         "mdi:auto-fix",
				CommandTopic: topics.EffectSet,
				StateTopic:   topics.EffectState,
				Options:      append([]string(nil), effects...),
			},
			{
				Component:    ComponentText,
				ObjectID:     "message",
				Name:         "Message",
				Icon:         "mdi:message-text",
				CommandTopic: topics.Message,
				StateTopic:   topics.MessageState,
				Max:          cfg.Queue.MaxTextLen,
			},
			{
				Component:  ComponentSensor,
				ObjectID:   "clock",
				Name:       "Clock",
				Icon:       "mdi:clock-digital",
				StateTopic: topics.ClockState,
			},
			{
				Component:    ComponentButton,
				ObjectID:     "ntp_sync",
				Name:         "Sync time",
				Icon:         "mdi:clock-check",
				CommandTopic: topics.NTPSync,
			},
			{
				// "r,g,b", 0-255 per channel.
				Component:    ComponentText,
				ObjectID:     "color",
				Name:         "Colour",
				Icon:         "mdi:palette",
				CommandTopic: topics.ColorSet,
				StateTopic:   topics.ColorState,
				Max:          len("255,255,255"),
			},
		},
	}

	if err := id.checkTopicLengths(); err != nil {
		return DeviceIdentity{}, err
	}
	return id, nil
}

func (d DeviceIdentity) checkTopicLengths() error {
	all := []string{
		d.Topics.Availability, d.Topics.ClockState, d.Topics.EffectSet, d.Topics.EffectState,
		d.Topics.BrightnessSet, d.Topics.BrightnessState, d.Topics.Message, d.Topics.MessageState,
		d.Topics.ButtonSet, d.Topics.NTPSync, d.Topics.ColorSet, d.Topics.ColorState,
	}
	for _, e := range d.Entities {
		all = append(all, d.DiscoveryTopic(e))
	}
	for _, topic := range all {
		if len(topic) > MaxTopicLen {
			return fmt.Errorf("%w: %q is %d bytes (max %d)", ErrTopicTooLong, topic, len(topic), MaxTopicLen)
		}
	}
	return nil
}
