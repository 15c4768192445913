package deduplication

import (
	"fmt"
	"strings"

	"docintake/similarity"
)

const (
	reasonNoHistory    = "No previous receipts to compare against"
	reasonNoRecent     = "No recent receipts to compare against"
	reasonNoSimilar    = "No similar receipts found"
	reasonExactBinary  = "Exact image match found"
	reasonExactContent = "Exact content match found"
	reasonFallback     = "Similar receipt found"
)

func exactBinarySuggestions() []string {
	return []string{
		"This appears to be the same image as a previously uploaded receipt",
		"Consider checking if you meant to upload a different receipt",
		"The previous upload was processed successfully",
	}
}

func exactContentSuggestions() []string {
	return []string{
		"This receipt has the same content as a previously uploaded one",
		"The merchant, amount, and date match exactly",
		"Consider if this is a different receipt or a duplicate",
	}
}

// explain lists the signals that cleared their own thresholds.
func (d *Detector) explain(m similarity.Metrics) string {
	t := d.cfg.Thresholds
	var reasons []string
	if d.cfg.EnableBinaryHashing && m.Binary > t.Binary {
		reasons = append(reasons, "Very similar image")
	}
	if d.cfg.EnableContentHashing && m.Content > t.Content {
		reasons = append(reasons, "Identical content")
	}
	if m.Merchant > t.Merchant {
		reasons = append(reasons, "Same merchant")
	}
	if m.Amount > t.Amount {
		reasons = append(reasons, "Same amount")
	}
	if m.Date > t.Date {
		reasons = append(reasons, "Same date")
	}
	if len(reasons) == 0 {
		return reasonFallback
	}
	return strings.Join(reasons, ", ")
}

func (d *Detector) suggest(m similarity.Metrics, existing Fingerprint) []string {
	t := d.cfg.Thresholds
	var out []string
	if d.cfg.EnableBinaryHashing && m.Binary > t.Binary {
		out = append(out, "This appears to be the same image as a previously uploaded receipt")
	}
	if d.cfg.EnableContentHashing && m.Content > t.Content {
		out = append(out, "The content matches exactly with a previous upload")
	}
	if m.Merchant > t.Merchant && m.Amount > t.Amount {
		out = append(out, "Same merchant and amount suggest this might be a duplicate")
	}
	if m.Date > t.Date {
		out = append(out, "Same date increases the likelihood of duplication")
	}
	out = append(out,
		fmt.Sprintf("Previous upload: %s - $%.2f on %s", existing.Merchant, existing.Amount, displayDate(existing.Date)),
		"If this is a different receipt, please verify and try again",
	)
	return out
}

func displayDate(raw string) string {
	if t, ok := similarity.ParseDate(raw); ok {
		return t.Format("1/2/2006")
	}
	return raw
}
