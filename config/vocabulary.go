package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/use-agent/offersync/models"
)

// LoadVocabulary returns the built-in vocabulary extended with the TOML file
// at path. An empty path returns the defaults unchanged.
func LoadVocabulary(path string) (models.Vocabulary, error) {
	defaults := models.DefaultVocabulary()
	if path == "" {
		return defaults, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return defaults, fmt.Errorf("read vocabulary file: %w", err)
	}

	var extra models.Vocabulary
	if err := v.Unmarshal(&extra); err != nil {
		return defaults, fmt.Errorf("decode vocabulary file: %w", err)
	}
	return defaults.Merge(extra), nil
}

// MarshalVocabulary renders a vocabulary as TOML, in the same shape
// LoadVocabulary accepts.
func MarshalVocabulary(v models.Vocabulary) ([]byte, error) {
	data, err := toml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode vocabulary: %w", err)
	}
	return data, nil
}
