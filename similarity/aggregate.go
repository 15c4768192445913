package similarity

// Signal names one similarity dimension.
type Signal int

const (
	SignalBinary Signal = iota
	SignalContent
	SignalMerchant
	SignalAmount
	SignalDate
)

var allSignals = [...]Signal{SignalBinary, SignalContent, SignalMerchant, SignalAmount, SignalDate}

func (s Signal) String() string {
	switch s {
	case SignalBinary:
		return "binary"
	case SignalContent:
		return "content"
	case SignalMerchant:
		return "merchant"
	case SignalAmount:
		return "amount"
	case SignalDate:
		return "date"
	}
	return "unknown"
}

// Metrics holds the per-signal similarities for one candidate pair.
type Metrics struct {
	Binary   float64 `json:"imageSimilarity"`
	Content  float64 `json:"contentSimilarity"`
	Merchant float64 `json:"merchantSimilarity"`
	Amount   float64 `json:"amountSimilarity"`
	Date     float64 `json:"dateSimilarity"`
}

// Value returns the similarity for s.
func (m Metrics) Value(s Signal) float64 {
	switch s {
	case SignalBinary:
		return m.Binary
	case SignalContent:
		return m.Content
	case SignalMerchant:
		return m.Merchant
	case SignalAmount:
		return m.Amount
	case SignalDate:
		return m.Date
	}
	return 0
}

// Weights are the fixed relative importances of each signal.
type Weights struct {
	Binary   float64
	Content  float64
	Merchant float64
	Amount   float64
	Date     float64
}

// DefaultWeights sums to 1.
var DefaultWeights = Weights{Binary: 0.3, Content: 0.2, Merchant: 0.2, Amount: 0.2, Date: 0.1}

func (w Weights) weight(s Signal) float64 {
	switch s {
	case SignalBinary:
		return w.Binary
	case SignalContent:
		return w.Content
	case SignalMerchant:
		return w.Merchant
	case SignalAmount:
		return w.Amount
	case SignalDate:
		return w.Date
	}
	return 0
}

// Aggregate returns the weighted mean of m over every signal that is not
// disabled. Disabled signals are left out of both the sum and the total
// weight; an enabled signal scoring 0 still counts.
func (w Weights) Aggregate(m Metrics, disabled ...Signal) float64 {
	var sum, total float64
	for _, s := range allSignals {
		if contains(disabled, s) {
			continue
		}
		wt := w.weight(s)
		if wt <= 0 {
			continue
		}
		sum += wt * m.Value(s)
		total += wt
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func contains(list []Signal, s Signal) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
