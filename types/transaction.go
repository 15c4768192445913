package types

// Direction of money movement for a transaction
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Transaction is one line item extracted from a document
type Transaction struct {
	ID          string    `json:"id,omitempty"`
	Date        string    `json:"date"`
	Merchant    string    `json:"merchant"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Direction   Direction `json:"direction"`
	Category    string    `json:"category,omitempty"`
	Subcategory string    `json:"subcategory,omitempty"`
}
