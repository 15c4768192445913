package deduplication

import (
	"testing"
)

func TestCanonicalContentAndHash(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		want   string
	}{
		{"simple", Fields{Merchant: "Starbucks", Amount: 4.5, Date: "2024-03-01", Description: "Latte"}, "Starbucks|4.5|2024-03-01|Latte"},
		{"whole amount", Fields{Merchant: "Shell", Amount: 60, Date: "2024-03-02"}, "Shell|60|2024-03-02|"},
		{"negative amount", Fields{Merchant: "Refund", Amount: -12.25}, "Refund|-12.25||"},
		{"empty", Fields{}, "|0||"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CanonicalContent(c.fields)
			if got != c.want {
				t.Fatalf("CanonicalContent(%+v) = %q; want %q", c.fields, got, c.want)
			}
			h := ContentHash(c.fields)
			if len(h) != 64 {
				t.Fatalf("ContentHash returned %d hex chars; want 64", len(h))
			}
			if h != ContentHash(c.fields) {
				t.Fatalf("ContentHash is not stable")
			}
		})
	}
}

func TestHashFile(t *testing.T) {
	h, err := HashFile(File{Content: []byte("abc")})
	if err != nil {
		t.Fatalf("HashFile error: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if h != want {
		t.Fatalf("HashFile(abc) = %s; want %s", h, want)
	}

	if _, err := HashFile(File{}); err != ErrEmptyFile {
		t.Fatalf("HashFile(empty) error = %v; want ErrEmptyFile", err)
	}
}
