package model

import (
	"encoding/json"
	"time"
)

const (
	DocumentLicense       = "license"
	DocumentCertification = "certification"
	DocumentInsurance     = "insurance"
	DocumentTax           = "tax"
	DocumentClaimPhoto    = "claim_photo"
	DocumentReport        = "report"
	DocumentOther         = "other"
)

type Document struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	ClaimID     *uint     `gorm:"index" json:"claim_id,omitempty"`
	Category    string    `gorm:"size:32;not null;index" json:"category"`
	Name        string    `gorm:"size:256;not null" json:"name"`
	MimeType    string    `gorm:"size:128;not null" json:"mime_type"`
	SizeBytes   int64     `gorm:"not null" json:"size_bytes"`
	SHA256      string    `gorm:"size:64;not null" json:"sha256"`
	StoragePath string    `gorm:"size:512;not null" json:"-"`
	ChunkCount  int       `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentChunk stores a text chunk of a vault document and its embedding.
// Embedding is stored as JSON array of float32 for portability.
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *DocumentChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

func (c *DocumentChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
