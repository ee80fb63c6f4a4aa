// Package models holds the wire-level representations of embeddings shared
// by the API and storage layers.
package models

import (
	"time"
)

// User represents a registered user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmbeddingParams records the parameters an embedding was produced with, so
// the layout can be reproduced byte for byte from the same inputs and seed.
type EmbeddingParams struct {
	NPull    int     `json:"n_pull"`
	AlphaExp float64 `json:"alpha_exp"`
	SNNExp   float64 `json:"snn_exp"`
	Distance string  `json:"distance"`
	Reducer  string  `json:"reducer"`
	Seed     int64   `json:"seed"`
}

// EmbeddingSummary is the persisted metadata of one computed embedding.
type EmbeddingSummary struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Factors   int             `json:"factors"`
	Samples   int             `json:"samples"`
	Features  int             `json:"features"`
	Params    EmbeddingParams `json:"params"`
	CreatedAt time.Time       `json:"created_at"`
}

// CoordinateKind distinguishes the three coordinate mappings of an embedding.
type CoordinateKind string

const (
	KindAnchor  CoordinateKind = "anchor"
	KindSample  CoordinateKind = "sample"
	KindFeature CoordinateKind = "feature"
)

// Coordinate is one identified 2D point of an embedding.
type Coordinate struct {
	Kind       CoordinateKind `json:"kind"`
	Identifier string         `json:"identifier"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
}

// Degeneracy is a recoverable warning surfaced during an embedding run.
type Degeneracy struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// FactorFeature is one entry of a per-factor top-feature summary.
type FactorFeature struct {
	Feature string  `json:"feature"`
	Loading float64 `json:"loading"`
}
