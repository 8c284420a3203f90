package domain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Embedding represents a numerical vector representation of text.
type Embedding []float32

// EmbeddingClient defines the interface for generating embeddings from text.
type EmbeddingClient interface {
	// GenerateEmbeddings generates embeddings for the given texts.
	GenerateEmbeddings(ctx context.Context, texts []string) ([]Embedding, error)
}

// EmbeddingRecord is the vector representation of one business entity.
// There is at most one record per (EntityID, EntityType).
type EmbeddingRecord struct {
	EntityID           string            `json:"entity_id"`
	EntityType         EntityType        `json:"entity_type"`
	TenantID           string            `json:"tenant_id"`
	BusinessIdentityID string            `json:"business_identity_id,omitempty"`
	Vector             Embedding         `json:"vector"`
	Content            string            `json:"content"`            // Canonical text the vector was computed from
	Metadata           map[string]string `json:"metadata,omitempty"` // Optional metadata
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Blob encodes the vector as little-endian float32s, the layout sqlite-vec
// reads.
func (e Embedding) Blob() []byte {
	buf := make([]byte, 4*len(e))
	for i, f := range e {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// EmbeddingFromBlob decodes a vector written by Blob.
func EmbeddingFromBlob(b []byte) (Embedding, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make(Embedding, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
