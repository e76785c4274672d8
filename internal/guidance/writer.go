package guidance

import (
	"context"
)

// WriteRequest is the input to a Writer.
type WriteRequest struct {
	Spec    KindSpec
	OwnerID string
	DateKey string
	Locale  string
}

// Section is one headed block of a document.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Document is the structured content stored on a READY guidance row.
type Document struct {
	Title    string            `json:"title"`
	Sections []Section         `json:"sections"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Provider string            `json:"-"`
}

// Writer produces document text for one guidance row.
type Writer interface {
	Write(ctx context.Context, req WriteRequest) (*Document, error)
}
