package deduplication

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"docintake/common"
	"docintake/similarity"

	"golang.org/x/sync/singleflight"
)

// CheckResult is the outcome of a duplicate check
type CheckResult struct {
	IsDuplicate bool                `json:"isDuplicate"`
	ExistingID  string              `json:"existingId,omitempty"`
	Confidence  float64             `json:"confidence"`
	Similarity  float64             `json:"similarity"`
	Reason      string              `json:"reason"`
	Existing    *Fingerprint        `json:"existingReceipt,omitempty"`
	Suggestions []string            `json:"suggestions,omitempty"`
	Metrics     *similarity.Metrics `json:"metrics,omitempty"`
	CheckedAt   time.Time           `json:"checkedAt"`
}

// Check outcomes reported to a Recorder.
const (
	OutcomeDuplicate = "duplicate"
	OutcomeUnique    = "unique"
	OutcomeError     = "error"
)

// Recorder receives one observation per duplicate check.
type Recorder interface {
	ObserveDuplicateCheck(outcome string, elapsed time.Duration)
}

// Stats are per-process counters since startup.
type Stats struct {
	TotalChecks        int64   `json:"totalChecks"`
	DuplicatesFound    int64   `json:"duplicatesFound"`
	Errors             int64   `json:"errors"`
	AverageCheckTimeMs float64 `json:"averageCheckTimeMs"`
}

// Detector decides whether an upload repeats one its owner already submitted.
type Detector struct {
	cfg     DetectionConfig
	weights similarity.Weights

	cache   *MemoryStore
	durable FingerprintStore

	loadedMu sync.Mutex
	loaded   map[string]bool
	group    singleflight.Group

	statsMu   sync.Mutex
	stats     Stats
	totalTime time.Duration

	now      func() time.Time
	log      *common.Logger
	recorder Recorder
}

// Option customizes a Detector.
type Option func(*Detector)

// WithDurableStore persists fingerprints beyond the process lifetime.
func WithDurableStore(s FingerprintStore) Option {
	return func(d *Detector) { d.durable = s }
}

// WithClock overrides the time source used for capture times and the time window.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func WithLogger(l *common.Logger) Option {
	return func(d *Detector) { d.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(d *Detector) { d.recorder = r }
}

// NewDetector validates cfg and builds a detector around it.
func NewDetector(cfg DetectionConfig, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	d := &Detector{
		cfg:     cfg,
		weights: similarity.DefaultWeights,
		cache:   NewMemoryStore(),
		loaded:  make(map[string]bool),
		now:     time.Now,
		log:     common.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the configuration the detector was built with.
func (d *Detector) Config() DetectionConfig { return d.cfg }

// CheckDuplicate compares an upload against the owner's history. It never
// fails: internal errors degrade to a non-duplicate result carrying the error.
func (d *Detector) CheckDuplicate(ctx context.Context, file File, fields Fields, ownerID string) CheckResult {
	start := time.Now()
	res, err := d.check(ctx, file, fields, ownerID)
	elapsed := time.Since(start)

	outcome := OutcomeUnique
	switch {
	case err != nil:
		outcome = OutcomeError
		d.log.Warn("duplicate check failed", "owner_id", ownerID, "file", file.Name, "error", err)
		res = CheckResult{
			Reason:    fmt.Sprintf("Error during duplicate check: %v", err),
			CheckedAt: d.now(),
		}
	case res.IsDuplicate:
		outcome = OutcomeDuplicate
		d.log.Info("duplicate upload detected", "owner_id", ownerID, "existing_id", res.ExistingID, "similarity", res.Similarity)
	}

	d.record(outcome, elapsed)
	return res
}

func (d *Detector) check(ctx context.Context, file File, fields Fields, ownerID string) (CheckResult, error) {
	checkedAt := d.now()

	var binaryHash, contentHash string
	if d.cfg.EnableBinaryHashing {
		h, err := HashFile(file)
		if err != nil {
			return CheckResult{}, fmt.Errorf("hash file: %w", err)
		}
		binaryHash = h
	}
	if d.cfg.EnableContentHashing {
		contentHash = ContentHash(fields)
	}

	history, err := d.history(ctx, ownerID)
	if err != nil {
		return CheckResult{}, err
	}
	if len(history) == 0 {
		return CheckResult{Reason: reasonNoHistory, CheckedAt: checkedAt}, nil
	}

	if res, ok := exactMatch(history, binaryHash, contentHash); ok {
		res.CheckedAt = checkedAt
		return res, nil
	}

	if !d.cfg.EnableFuzzyMatching {
		return CheckResult{Reason: reasonNoSimilar, CheckedAt: checkedAt}, nil
	}

	cutoff := checkedAt.Add(-time.Duration(d.cfg.TimeWindowDays) * 24 * time.Hour)
	var (
		best        *Fingerprint
		bestScore   float64
		bestMetrics similarity.Metrics
	)
	for i := range history {
		fp := &history[i]
		if !fp.CapturedTime().After(cutoff) {
			continue
		}
		m := d.metrics(fp, binaryHash, contentHash, fields)
		score := d.weights.Aggregate(m, d.disabledSignals()...)
		if best == nil || score > bestScore {
			best, bestScore, bestMetrics = fp, score, m
		}
	}

	if best == nil {
		return CheckResult{Reason: reasonNoRecent, CheckedAt: checkedAt}, nil
	}

	if bestScore >= d.cfg.Thresholds.Overall {
		existing := *best
		return CheckResult{
			IsDuplicate: true,
			ExistingID:  existing.ID,
			Confidence:  bestScore,
			Similarity:  bestScore,
			Reason:      d.explain(bestMetrics),
			Existing:    &existing,
			Suggestions: d.suggest(bestMetrics, existing),
			Metrics:     &bestMetrics,
			CheckedAt:   checkedAt,
		}, nil
	}

	return CheckResult{
		Confidence: bestScore,
		Similarity: bestScore,
		Reason:     fmt.Sprintf("Best match similarity: %.1f%% (below threshold)", bestScore*100),
		Metrics:    &bestMetrics,
		CheckedAt:  checkedAt,
	}, nil
}

// exactMatch prefers a binary hash match over a content hash match.
func exactMatch(history []Fingerprint, binaryHash, contentHash string) (CheckResult, bool) {
	if binaryHash != "" {
		for i := range history {
			if history[i].BinaryHash == binaryHash {
				existing := history[i]
				return CheckResult{
					IsDuplicate: true,
					ExistingID:  existing.ID,
					Confidence:  1.0,
					Similarity:  1.0,
					Reason:      reasonExactBinary,
					Existing:    &existing,
					Suggestions: exactBinarySuggestions(),
				}, true
			}
		}
	}
	if contentHash != "" {
		for i := range history {
			if history[i].ContentHash == contentHash {
				existing := history[i]
				return CheckResult{
					IsDuplicate: true,
					ExistingID:  existing.ID,
					Confidence:  0.95,
					Similarity:  0.95,
					Reason:      reasonExactContent,
					Existing:    &existing,
					Suggestions: exactContentSuggestions(),
				}, true
			}
		}
	}
	return CheckResult{}, false
}

func (d *Detector) metrics(fp *Fingerprint, binaryHash, contentHash string, fields Fields) similarity.Metrics {
	var m similarity.Metrics
	if d.cfg.EnableBinaryHashing {
		m.Binary = similarity.HashSimilarity(binaryHash, fp.BinaryHash)
	}
	if d.cfg.EnableContentHashing {
		m.Content = similarity.HashSimilarity(contentHash, fp.ContentHash)
	}
	m.Merchant = similarity.MerchantSimilarity(fields.Merchant, fp.Merchant)
	m.Amount = similarity.AmountSimilarity(fields.Amount, fp.Amount)
	if tol := d.cfg.AmountTolerance; tol > 0 && fields.Amount != 0 && math.Abs(fields.Amount-fp.Amount) <= tol {
		m.Amount = 1
	}
	m.Date = similarity.DateSimilarity(fields.Date, fp.Date)
	return m
}

func (d *Detector) disabledSignals() []similarity.Signal {
	var out []similarity.Signal
	if !d.cfg.EnableBinaryHashing {
		out = append(out, similarity.SignalBinary)
	}
	if !d.cfg.EnableContentHashing {
		out = append(out, similarity.SignalContent)
	}
	return out
}

// StoreFingerprint records an accepted upload so later checks can match it.
func (d *Detector) StoreFingerprint(ctx context.Context, file File, fields Fields, ownerID string, confidence float64) (Fingerprint, error) {
	binaryHash, err := HashFile(file)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hash file: %w", err)
	}
	if err := d.hydrate(ctx, ownerID); err != nil {
		return Fingerprint{}, err
	}

	fp := newFingerprint(ownerID, binaryHash, file, fields, confidence, d.now())
	if d.durable != nil {
		if err := d.durable.Append(ctx, fp); err != nil {
			return Fingerprint{}, fmt.Errorf("persist fingerprint: %w", err)
		}
	}
	if err := d.cache.Append(ctx, fp); err != nil {
		return Fingerprint{}, err
	}

	d.log.Debug("fingerprint stored", "owner_id", ownerID, "fingerprint_id", fp.ID)
	return fp, nil
}

// ClearOwner removes every fingerprint held for ownerID.
func (d *Detector) ClearOwner(ctx context.Context, ownerID string) error {
	if d.durable != nil {
		if err := d.durable.Clear(ctx, ownerID); err != nil {
			return fmt.Errorf("clear fingerprints for %s: %w", ownerID, err)
		}
	}
	// Marking the owner loaded under loadedMu makes any durable load still in
	// flight drop its now stale result.
	d.loadedMu.Lock()
	defer d.loadedMu.Unlock()
	if err := d.cache.Clear(ctx, ownerID); err != nil {
		return err
	}
	d.loaded[ownerID] = true
	return nil
}

// OwnerCount returns how many fingerprints ownerID has.
func (d *Detector) OwnerCount(ctx context.Context, ownerID string) (int, error) {
	if err := d.hydrate(ctx, ownerID); err != nil {
		return 0, err
	}
	return d.cache.Count(ownerID), nil
}

// Stats returns a snapshot of the per-process counters.
func (d *Detector) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Ping checks the durable store, if any.
func (d *Detector) Ping(ctx context.Context) error {
	if d.durable == nil {
		return nil
	}
	return d.durable.Ping(ctx)
}

// history returns the owner's fingerprints, loading them from the durable
// store on first use.
func (d *Detector) history(ctx context.Context, ownerID string) ([]Fingerprint, error) {
	if err := d.hydrate(ctx, ownerID); err != nil {
		return nil, err
	}
	return d.cache.snapshot(ownerID), nil
}

// hydrate fills the cache for ownerID from the durable store once. Concurrent
// first loads for one owner share a single read.
func (d *Detector) hydrate(ctx context.Context, ownerID string) error {
	if d.durable == nil || d.isLoaded(ownerID) {
		return nil
	}

	_, err, _ := d.group.Do(ownerID, func() (interface{}, error) {
		if d.isLoaded(ownerID) {
			return nil, nil
		}
		fps, err := d.durable.Load(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("load fingerprints: %w", err)
		}
		d.loadedMu.Lock()
		defer d.loadedMu.Unlock()
		if d.loaded[ownerID] {
			// cleared while loading
			return nil, nil
		}
		d.cache.replace(ownerID, fps)
		d.loaded[ownerID] = true
		return nil, nil
	})
	return err
}

func (d *Detector) isLoaded(ownerID string) bool {
	d.loadedMu.Lock()
	defer d.loadedMu.Unlock()
	return d.loaded[ownerID]
}

func (d *Detector) record(outcome string, elapsed time.Duration) {
	d.statsMu.Lock()
	d.stats.TotalChecks++
	switch outcome {
	case OutcomeDuplicate:
		d.stats.DuplicatesFound++
	case OutcomeError:
		d.stats.Errors++
	}
	d.totalTime += elapsed
	d.stats.AverageCheckTimeMs = float64(d.totalTime.Microseconds()) / 1000 / float64(d.stats.TotalChecks)
	d.statsMu.Unlock()

	if d.recorder != nil {
		d.recorder.ObserveDuplicateCheck(outcome, elapsed)
	}
}
