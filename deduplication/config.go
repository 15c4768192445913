package deduplication

import (
	"fmt"
)

// Thresholds are the per-signal cutoffs plus the aggregate decision cutoff.
type Thresholds struct {
	Binary   float64 `yaml:"image" json:"image"`
	Content  float64 `yaml:"content" json:"content"`
	Merchant float64 `yaml:"merchant" json:"merchant"`
	Amount   float64 `yaml:"amount" json:"amount"`
	Date     float64 `yaml:"date" json:"date"`
	Overall  float64 `yaml:"overall" json:"overall"`
}

// DetectionConfig is fixed for the lifetime of a Detector.
type DetectionConfig struct {
	Thresholds           Thresholds `yaml:"thresholds" json:"thresholds"`
	TimeWindowDays       int        `yaml:"timeWindowDays" json:"timeWindowDays"`
	EnableBinaryHashing  bool       `yaml:"enableBinaryHashing" json:"enableBinaryHashing"`
	EnableContentHashing bool       `yaml:"enableContentHashing" json:"enableContentHashing"`
	EnableFuzzyMatching  bool       `yaml:"enableFuzzyMatching" json:"enableFuzzyMatching"`
	// AmountTolerance treats amounts within this absolute difference as equal.
	// Zero keeps the purely relative comparison.
	AmountTolerance float64 `yaml:"amountTolerance" json:"amountTolerance"`
}

// DefaultDetectionConfig returns the production defaults.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Thresholds: Thresholds{
			Binary:   0.95,
			Content:  0.85,
			Merchant: 0.8,
			Amount:   0.9,
			Date:     0.8,
			Overall:  0.8,
		},
		TimeWindowDays:       7,
		EnableBinaryHashing:  true,
		EnableContentHashing: true,
		EnableFuzzyMatching:  true,
	}
}

// Validate rejects thresholds outside [0,1] and negative windows.
func (c DetectionConfig) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"thresholds.image", c.Thresholds.Binary},
		{"thresholds.content", c.Thresholds.Content},
		{"thresholds.merchant", c.Thresholds.Merchant},
		{"thresholds.amount", c.Thresholds.Amount},
		{"thresholds.date", c.Thresholds.Date},
		{"thresholds.overall", c.Thresholds.Overall},
	}
	for _, ch := range checks {
		if ch.v < 0 || ch.v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", ch.name, ch.v)
		}
	}
	if c.TimeWindowDays < 0 {
		return fmt.Errorf("timeWindowDays must not be negative, got %d", c.TimeWindowDays)
	}
	if c.AmountTolerance < 0 {
		return fmt.Errorf("amountTolerance must not be negative, got %v", c.AmountTolerance)
	}
	return nil
}
