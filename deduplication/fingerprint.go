package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyFile is returned when a document has no bytes to hash.
var ErrEmptyFile = errors.New("file has no content")

// File is an uploaded document as seen by the detector.
type File struct {
	Name         string
	Size         int64
	LastModified time.Time
	Content      []byte
}

// Fields are the values extracted from a document that identify its content.
type Fields struct {
	Merchant    string  `json:"merchant"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
}

// FileMeta is informational only and never used for matching.
type FileMeta struct {
	Size         int64  `json:"fileSize"`
	Name         string `json:"fileName"`
	LastModified int64  `json:"lastModified"`
}

// Fingerprint is the immutable record of one accepted upload.
type Fingerprint struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"ownerId"`
	BinaryHash  string   `json:"binaryHash"`
	ContentHash string   `json:"contentHash"`
	Merchant    string   `json:"merchant"`
	Amount      float64  `json:"amount"`
	Date        string   `json:"date"`
	Confidence  float64  `json:"confidence"`
	CapturedAt  int64    `json:"capturedAt"`
	FileMeta    FileMeta `json:"fileMeta"`
}

// CapturedTime returns CapturedAt as a time.Time.
func (f Fingerprint) CapturedTime() time.Time {
	return time.UnixMilli(f.CapturedAt)
}

// HashFile returns the SHA-256 hex digest of the raw document bytes.
func HashFile(f File) (string, error) {
	if len(f.Content) == 0 {
		return "", ErrEmptyFile
	}
	sum := sha256.Sum256(f.Content)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalContent renders fields as merchant|amount|date|description.
func CanonicalContent(fields Fields) string {
	return strings.Join([]string{
		fields.Merchant,
		strconv.FormatFloat(fields.Amount, 'f', -1, 64),
		fields.Date,
		fields.Description,
	}, "|")
}

// ContentHash returns the SHA-256 hex digest of CanonicalContent(fields).
func ContentHash(fields Fields) string {
	sum := sha256.Sum256([]byte(CanonicalContent(fields)))
	return hex.EncodeToString(sum[:])
}

func newFingerprint(ownerID, binaryHash string, f File, fields Fields, confidence float64, now time.Time) Fingerprint {
	var lastModified int64
	if !f.LastModified.IsZero() {
		lastModified = f.LastModified.UnixMilli()
	}
	size := f.Size
	if size == 0 {
		size = int64(len(f.Content))
	}
	return Fingerprint{
		ID:          "fp_" + uuid.NewString(),
		OwnerID:     ownerID,
		BinaryHash:  binaryHash,
		ContentHash: ContentHash(fields),
		Merchant:    fields.Merchant,
		Amount:      fields.Amount,
		Date:        fields.Date,
		Confidence:  confidence,
		CapturedAt:  now.UnixMilli(),
		FileMeta: FileMeta{
			Size:         size,
			Name:         f.Name,
			LastModified: lastModified,
		},
	}
}
