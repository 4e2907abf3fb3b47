// Package config loads the clock's settings and derives its identity.
//
// Load starts from Default, overlays a YAML file (TOML when the name ends
// in .toml), then UNICORN_* environment variables, and finally runs
// Validate. Keep the Wi-Fi and broker passwords in the environment rather
// than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//		return err
//	}
//	id, err := config.NewIdentity(cfg, version, render.EffectNames())
//
// The resulting DeviceIdentity holds every MQTT topic and Home Assistant
// entity name, computed once at boot.
package config
