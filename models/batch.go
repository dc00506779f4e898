package models

import (
	"time"

	"ieltsocr/pkg/ocr"
)

// Batch is one upload of certificate images and its extraction results.
// It is written as batch.json inside the batch directory.
type Batch struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Engine    string       `json:"engine"`
	Results   []ocr.Result `json:"results"`
	Rejected  []Rejection  `json:"rejected,omitempty"`
	// DurationMS covers the whole batch, uploads excluded.
	DurationMS int64 `json:"duration_ms"`
}

// Rejection records an uploaded file that was not processed.
type Rejection struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// Failed counts results that carry an error.
func (b *Batch) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}
