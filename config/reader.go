package config

import (
	"encoding/json"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Read loads the config file at filePath, expanding ${VAR} references from the environment,
// and validates it.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromJSON(buf)
}

// FromJSON parses and validates a config document.
func FromJSON(data []byte) (*Config, error) {
	var attrs map[string]interface{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	return FromAttributes(attrs)
}

// FromAttributes converts a generic attribute map into a validated Config. Durations may be
// given as strings such as "5us" and numbers may be given as strings such as "0x50".
func FromAttributes(attrs map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating decoder")
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot convert config")
	}
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	return &conf, nil
}
