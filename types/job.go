package types

import "time"

// JobState is the lifecycle state of a document-processing job
type JobState string

const (
	JobQueued          JobState = "queued"
	JobProcessing      JobState = "processing"
	JobCompleted       JobState = "completed"
	JobFailed          JobState = "failed"
	JobNotFound        JobState = "not_found"
	JobAcceptedNoQueue JobState = "accepted_no_queue"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobNotFound:
		return true
	}
	return false
}

// DocType identifies the kind of document submitted for extraction
type DocType string

const (
	DocTypeReceipt       DocType = "receipt"
	DocTypeBankStatement DocType = "bank_statement"
)

// JobRequest is the client-supplied input for a document-processing job
type JobRequest struct {
	OwnerID    string  `json:"ownerId" validate:"required"`
	DocumentID string  `json:"documentId,omitempty" validate:"omitempty,uuid"`
	FileURL    string  `json:"fileUrl,omitempty" validate:"omitempty,url"`
	FileName   string  `json:"fileName,omitempty" validate:"omitempty,max=255"`
	DocType    DocType `json:"docType" validate:"required,oneof=receipt bank_statement"`
	Redact     *bool   `json:"redact,omitempty"`
}

// RedactEnabled returns the redact flag, defaulting to true when unset.
func (r JobRequest) RedactEnabled() bool {
	return r.Redact == nil || *r.Redact
}

// JobResult is populated only on the transition to JobCompleted
type JobResult struct {
	Transactions     []Transaction `json:"transactions"`
	TransactionCount int           `json:"transactionCount"`
	ProcessingTimeMs int64         `json:"processingTime"`
	DurationMs       int64         `json:"durationMs"`
}

// Job is a single document-processing request and its lifecycle
type Job struct {
	ID          string     `json:"jobId"`
	State       JobState   `json:"state"`
	Progress    int        `json:"progress"`
	Input       JobRequest `json:"data"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt"`
	FinishedAt  *time.Time `json:"finishedAt"`
}

// Submission is returned to the client on job submission, on both the
// queued and the synchronous path.
type Submission struct {
	ID    string   `json:"jobId"`
	State JobState `json:"state"`
}
