package multistore

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ShopMeta contains shop-level metadata persisted in meta.yaml.
type ShopMeta struct {
	// Created is when the local mirror was first created.
	Created time.Time `yaml:"created"`
	// LastAccessed is when the mirror was last accessed (read or write).
	LastAccessed time.Time `yaml:"last_accessed"`
	// Description is an optional human-readable description.
	Description string `yaml:"description,omitempty"`
}

// ShopInfo contains summary information about a shop mirror.
type ShopInfo struct {
	ID           string    `json:"id"`
	Created      time.Time `json:"created"`
	LastAccessed time.Time `json:"lastAccessed"`
	Description  string    `json:"description,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
}

// NewShopMeta creates metadata for a new shop mirror.
func NewShopMeta(description string) *ShopMeta {
	now := time.Now().UTC()
	return &ShopMeta{
		Created:      now,
		LastAccessed: now,
		Description:  description,
	}
}

// LoadShopMeta reads shop metadata from a file path.
// Returns an error if the file doesn't exist or is malformed.
func LoadShopMeta(path string) (*ShopMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta ShopMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse shop metadata: %w", err)
	}

	return &meta, nil
}

// SaveShopMeta writes shop metadata to a file path.
func SaveShopMeta(path string, meta *ShopMeta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal shop metadata: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
