package config

import (
	"strconv"

	"github.com/aperture-cli/aperture/aperr"
)

// Setting keys accepted by `config set` and `config get`.
const (
	SettingDefaultTimeoutSecs = "default_timeout_secs"
	SettingJSONErrors         = "agent_defaults.json_errors"
)

// Setting is one key/value pair for `config settings`.
type Setting struct {
	Key   string
	Value string
}

// Settings lists every setting with its effective value, in a fixed order.
func Settings(cfg *GlobalConfig) []Setting {
	return []Setting{
		{SettingDefaultTimeoutSecs, strconv.Itoa(cfg.TimeoutSecs())},
		{SettingJSONErrors, strconv.FormatBool(cfg != nil && cfg.AgentDefaults.JSONErrors)},
	}
}

// GetSetting returns the effective value for key.
func GetSetting(cfg *GlobalConfig, key string) (string, error) {
	for _, s := range Settings(cfg) {
		if s.Key == key {
			return s.Value, nil
		}
	}
	return "", unknownSettingErr(key)
}

// SetSetting validates and applies a value for key.
func SetSetting(cfg *GlobalConfig, key, value string) error {
	switch key {
	case SettingDefaultTimeoutSecs:
		// Bounded above by one year; anything larger is a typo.
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 || n > 365*24*3600 {
			return aperr.New(aperr.Configuration,
				"invalid value %q for %s: expected a positive number of seconds", value, key)
		}
		cfg.DefaultTimeoutSecs = n
	case SettingJSONErrors:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return aperr.New(aperr.Configuration,
				"invalid value %q for %s: expected true or false", value, key)
		}
		cfg.AgentDefaults.JSONErrors = b
	default:
		return unknownSettingErr(key)
	}
	return nil
}

func unknownSettingErr(key string) error {
	return aperr.New(aperr.Configuration,
		"unknown setting %q: valid keys are %s, %s",
		key, SettingDefaultTimeoutSecs, SettingJSONErrors)
}
