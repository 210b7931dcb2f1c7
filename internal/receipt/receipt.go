package receipt

import "github.com/zombor/hisab/internal/scanning"

// Receipt is a processed receipt record as returned by the extraction backend
type Receipt = scanning.ProcessReceiptResponse

// User is the local identity of the person using the app
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// State is the application state shared with the presentation layer
type State struct {
	User      *User      `json:"user"`
	Receipts  []*Receipt `json:"receipts"` // newest first
	IsLoading bool       `json:"is_loading"`
	Error     string     `json:"error,omitempty"` // empty when there is no error
}

// clone returns a deep copy; stored receipts are never reachable through it
func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Receipts = make([]*Receipt, len(s.Receipts))
	for i, r := range s.Receipts {
		out.Receipts[i] = copyReceipt(r)
	}
	return out
}

func copyReceipt(r *Receipt) *Receipt {
	if r == nil {
		return nil
	}
	out := *r
	if r.Items != nil {
		out.Items = make([]scanning.ReceiptItem, len(r.Items))
		copy(out.Items, r.Items)
	}
	if r.Summary != nil {
		summary := *r.Summary
		if r.Summary.TaxAmount != nil {
			tax := *r.Summary.TaxAmount
			summary.TaxAmount = &tax
		}
		out.Summary = &summary
	}
	return &out
}
