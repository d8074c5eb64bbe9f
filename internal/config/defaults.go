package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host": "0.0.0.0",
		"server.port": 8080,

		"database.url":             "",
		"database.max_connections": 10,

		"jobs.dir":               "./jobs",
		"jobs.step_timeout":      "180s",
		"jobs.subscriber_buffer": 256,
		"jobs.shell":             "/bin/sh",

		"logging.level":  "info",
		"logging.format": "pretty",
	}

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}
