package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "abcd", "abcd", 1},
		{"one mismatch", "abcd", "abcf", 0.75},
		{"length difference counts as mismatch", "ab", "abcd", 0.5},
		{"both empty", "", "", 1},
		{"one empty", "", "ab", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HashSimilarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, HashSimilarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 0, Levenshtein("", ""))
	assert.Equal(t, 4, Levenshtein("", "uber"))
	assert.Equal(t, 1, Levenshtein("café", "cafe"))
}

func TestMerchantSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, MerchantSimilarity("STARBUCKS", "starbucks"))
	assert.Equal(t, 1.0, MerchantSimilarity("  Target ", "target"))

	typo := MerchantSimilarity("Strabucks", "Starbucks")
	assert.InDelta(t, 7.0/9.0, typo, 1e-9)
	assert.True(t, typo >= 0.7 && typo <= 0.95)

	assert.Less(t, MerchantSimilarity("Uber", "Walmart"), 0.2)
}

func TestAmountSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"equal", 42.5, 42.5, 1},
		{"both zero", 0, 0, 0},
		{"close", 100, 90, 1 - 10.0/95.0},
		{"opposite signs average to zero", 10, -10, 0},
		{"far apart floors at zero", 100, 400, 0},
		{"refunds", -50, -40, 1 - 10.0/45.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountSimilarity(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
	assert.Equal(t, 0.0, AmountSimilarity(math.NaN(), 1))
}

func TestDateSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"same string", "2024-03-01", "2024-03-01", 1},
		{"same day different formats", "2024-03-01", "2024-03-01T18:00:00Z", 1},
		{"one day", "2024-03-01", "2024-03-02", 0.8},
		{"us format one day", "03/02/2024", "2024-03-01", 0.8},
		{"within a week", "2024-03-01", "2024-03-05", 0.5},
		{"within a month", "2024-03-01", "2024-03-20", 0.2},
		{"far apart", "2024-03-01", "2024-05-01", 0},
		{"unparseable", "yesterday", "2024-03-01", 0},
		{"missing", "", "2024-03-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateSimilarity(tt.a, tt.b))
		})
	}
}

func TestAggregate(t *testing.T) {
	w := DefaultWeights

	all := Metrics{Binary: 1, Content: 1, Merchant: 1, Amount: 1, Date: 1}
	assert.InDelta(t, 1.0, w.Aggregate(all), 1e-9)

	half := Metrics{Binary: 0.5, Content: 0.5, Merchant: 1, Amount: 1, Date: 1}
	assert.InDelta(t, 0.75, w.Aggregate(half), 1e-9)

	// disabled hashes do not penalize
	assert.InDelta(t, 1.0, w.Aggregate(half, SignalBinary, SignalContent), 1e-9)

	// an enabled zero does
	noDate := Metrics{Binary: 1, Content: 1, Merchant: 1, Amount: 1, Date: 0}
	assert.InDelta(t, 0.9, w.Aggregate(noDate), 1e-9)

	assert.Equal(t, 0.0, Weights{}.Aggregate(all))
}
