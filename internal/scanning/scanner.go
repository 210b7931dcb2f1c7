package scanning

import "context"

// Status is the processing status reported by the extraction backend
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusProcessing Status = "processing"
)

// ReceiptItem is a single line item on a receipt
type ReceiptItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

// ReceiptSummary holds the totals of a receipt
type ReceiptSummary struct {
	MerchantName string   `json:"merchant_name"`
	TotalAmount  float64  `json:"total_amount"`
	TaxAmount    *float64 `json:"tax_amount,omitempty"`
	Date         string   `json:"date"` // ISO 8601 when the backend date could be parsed
	Currency     string   `json:"currency"`
}

// ProcessReceiptResponse is the structured result of processing one receipt image
type ProcessReceiptResponse struct {
	Items          []ReceiptItem   `json:"items"`
	Summary        *ReceiptSummary `json:"summary"`
	WalletPassLink string          `json:"wallet_pass_link,omitempty"`
	Status         Status          `json:"status"`
	Message        string          `json:"message,omitempty"`
}

// Extractor defines the interface for turning an encoded receipt image into structured data
type Extractor interface {
	// Extract sends the payload for processing on behalf of userID
	Extract(ctx context.Context, payload Payload, userID string) (*ProcessReceiptResponse, error)
	// Close releases resources held by the extractor
	Close() error
}

// HistorySource fetches receipts previously processed for a user
type HistorySource interface {
	History(ctx context.Context, userID string) History
}

// HistoryKind distinguishes "no server data" from "server data confirmed empty"
type HistoryKind int

const (
	HistoryUnavailable HistoryKind = iota
	HistoryEmpty
	HistoryFound
)

func (k HistoryKind) String() string {
	switch k {
	case HistoryEmpty:
		return "empty"
	case HistoryFound:
		return "found"
	default:
		return "unavailable"
	}
}

// History is the outcome of a remote history lookup
type History struct {
	Kind     HistoryKind
	Receipts []*ProcessReceiptResponse
	Err      error // set when Kind is HistoryUnavailable because of a failure
}

// NoHistory is a HistorySource for backends without server-side history
type NoHistory struct{}

// History always reports the remote as unavailable
func (NoHistory) History(ctx context.Context, userID string) History {
	return History{Kind: HistoryUnavailable}
}
