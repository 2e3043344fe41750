// Package domain contains the core domain models for the listing engine.
package domain

import "time"

// Model represents a hardware SKU being price-tracked.
// The spec sheet fields (keywords, price window) drive listing
// classification; nothing in this service mutates them.
type Model struct {
	Name              string    `db:"name"               json:"name"`
	Label             string    `db:"label"              json:"label"`
	RequiredKeywords  []string  `db:"required_keywords"  json:"required_keywords"`
	AccessoryKeywords []string  `db:"accessory_keywords" json:"accessory_keywords"`
	MinPrice          float64   `db:"min_price"          json:"min_price"`
	MaxPrice          float64   `db:"max_price"          json:"max_price"`
	Enabled           bool      `db:"enabled"            json:"enabled"`
	CreatedAt         time.Time `db:"created_at"         json:"created_at"`
}

// ModelStaleness pairs a model with the age signal that drives
// revalidation priority. OldestCachedAt is nil when the model has no
// active listings at all ("never cached"), which sorts before any
// timestamp.
type ModelStaleness struct {
	Model          Model
	OldestCachedAt *time.Time
}

// NeverCached reports whether the model has no active cache entries.
func (s ModelStaleness) NeverCached() bool {
	return s.OldestCachedAt == nil
}
