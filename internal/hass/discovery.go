// Package hass builds Home Assistant MQTT discovery announcements for the
// entities described by the device identity.
package hass

import (
	"encoding/json"
	"fmt"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

// Availability payloads published on the availability topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// DeviceModel is the device block shared by every entity of the clock.
type DeviceModel struct {
	Identifiers     []string `json:"identifiers"`
	Name            string   `json:"name"`
	Manufacturer    string   `json:"manufacturer,omitempty"`
	Model           string   `json:"model,omitempty"`
	SoftwareVersion string   `json:"sw_version,omitempty"`
}

// EntityModel is one discovery config payload. Fields unused by a component
// are omitted.
type EntityModel struct {
	Name                string       `json:"name"`
	UniqueID            string       `json:"unique_id"`
	ObjectID            string       `json:"object_id"`
	Icon                string       `json:"icon,omitempty"`
	CommandTopic        string       `json:"command_topic,omitempty"`
	StateTopic          string       `json:"state_topic,omitempty"`
	AvailabilityTopic   string       `json:"availability_topic"`
	PayloadAvailable    string       `json:"payload_available"`
	PayloadNotAvailable string       `json:"payload_not_available"`
	Options             []string     `json:"options,omitempty"`
	Min                 *int         `json:"min,omitempty"`
	Max                 *int         `json:"max,omitempty"`
	Mode                string       `json:"mode,omitempty"`
	Device              *DeviceModel `json:"device"`
}

// Announcement is one retained discovery publish.
type Announcement struct {
	Topic   string
	Payload []byte
}

// Device returns the device block for id.
func Device(id config.DeviceIdentity) *DeviceModel {
	return &DeviceModel{
		Identifiers:     []string{id.DeviceID},
		Name:            id.Name,
		Manufacturer:    id.Manufacturer,
		Model:           id.Model,
		SoftwareVersion: id.SWVersion,
	}
}

// Entity converts an entity descriptor into its discovery payload.
func Entity(id config.DeviceIdentity, e config.Entity) EntityModel {
	m := EntityModel{
		Name:                e.Name,
		UniqueID:            e.UniqueID(id.DeviceID),
		ObjectID:            e.UniqueID(id.DeviceID),
		Icon:                e.Icon,
		CommandTopic:        e.CommandTopic,
		StateTopic:          e.StateTopic,
		AvailabilityTopic:   id.Topics.Availability,
		PayloadAvailable:    PayloadOnline,
		PayloadNotAvailable: PayloadOffline,
		Device:              Device(id),
	}

	switch e.Component {
	case config.ComponentSelect:
		m.Options = e.Options
	case config.ComponentNumber:
		lo, hi := e.Min, e.Max
		m.Min, m.Max = &lo, &hi
		m.Mode = "slider"
	case config.ComponentText:
		if e.Max > 0 {
			hi := e.Max
			m.Max = &hi
		}
		m.Mode = "text"
	}
	return m
}

// Announcements returns one discovery publish per entity, in entity order.
func Announcements(id config.DeviceIdentity) ([]Announcement, error) {
	out := make([]Announcement, 0, len(id.Entities))
	for _, e := range id.Entities {
		payload, err := json.Marshal(Entity(id, e))
		if err != nil {
			return nil, fmt.Errorf("marshal discovery for %s: %w", e.ObjectID, err)
		}
		out = append(out, Announcement{Topic: id.DiscoveryTopic(e), Payload: payload})
	}
	return out, nil
}
