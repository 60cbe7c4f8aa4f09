package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local" or "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Service account key file for GCS. Empty uses application default credentials.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// Decode decodes a raw "storage.<name>" entry using its yaml tags.
func Decode(raw interface{}) (StorageConfig, error) {
	var cfg StorageConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "yaml",
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to create decoder for storage config: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config: %w", err)
	}
	return cfg, nil
}
