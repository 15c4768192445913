// Package processor defines the contract with the external document-extraction
// service and an HTTP client for it.
package processor

import (
	"context"
	"fmt"

	"docintake/common"
	"docintake/types"
)

// ProgressFunc receives a completion percentage in [0,100].
type ProgressFunc func(percent int)

// Request describes one document to extract.
type Request struct {
	JobID      string        `json:"jobId"`
	OwnerID    string        `json:"ownerId"`
	DocumentID string        `json:"documentId,omitempty"`
	FileURL    string        `json:"fileUrl,omitempty"`
	FileName   string        `json:"fileName,omitempty"`
	DocType    types.DocType `json:"docType"`
	Redact     bool          `json:"redact"`
	OnProgress ProgressFunc  `json:"-"`
}

// ReportProgress forwards p to OnProgress when one is set.
func (r Request) ReportProgress(p int) {
	if r.OnProgress != nil {
		r.OnProgress(p)
	}
}

// Ref identifies the document in error messages.
func (r Request) Ref() string {
	if r.DocumentID != "" {
		return r.DocumentID
	}
	if r.FileName != "" {
		return r.FileName
	}
	return r.FileURL
}

// NewRequest builds a Request for a job's input.
func NewRequest(jobID string, in types.JobRequest, onProgress ProgressFunc) Request {
	return Request{
		JobID:      jobID,
		OwnerID:    in.OwnerID,
		DocumentID: in.DocumentID,
		FileURL:    in.FileURL,
		FileName:   in.FileName,
		DocType:    in.DocType,
		Redact:     in.RedactEnabled(),
		OnProgress: onProgress,
	}
}

// Result is the extraction output.
type Result struct {
	Transactions     []types.Transaction `json:"transactions"`
	TransactionCount int                 `json:"transactionCount"`
	ProcessingTimeMs int64               `json:"processingTime"`
}

// Processor extracts transactions from a document.
type Processor interface {
	Process(ctx context.Context, req Request) (*Result, error)
}

// Config selects an extraction backend by Driver: "http" (default) or
// "documentai".
type Config struct {
	Driver     string
	HTTP       HTTPConfig
	DocumentAI DocumentAIConfig
}

// New builds the Processor named by cfg.Driver.
func New(ctx context.Context, cfg Config, log *common.Logger) (Processor, error) {
	switch cfg.Driver {
	case "", "http":
		return NewHTTPProcessor(cfg.HTTP, log)
	case "documentai":
		return NewDocumentAIProcessor(ctx, cfg.DocumentAI, log)
	}
	return nil, fmt.Errorf("unsupported processor driver %q", cfg.Driver)
}

// Func adapts a function to the Processor interface.
type Func func(ctx context.Context, req Request) (*Result, error)

func (f Func) Process(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// ProcessingError is a document-level failure: unreadable file, unsupported
// format, or an extraction service that rejected the document.
type ProcessingError struct {
	DocumentRef string
	Reason      string
	Err         error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processing %s failed: %s: %v", e.DocumentRef, e.Reason, e.Err)
	}
	return fmt.Sprintf("processing %s failed: %s", e.DocumentRef, e.Reason)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
