package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// extractJSONObject strips markdown code fences and surrounding prose from a model reply
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseReceiptResponse extracts the JSON object from a model reply, then
// validates and decodes it. Every failure is reported as ErrInvalidResponseFormat.
func parseReceiptResponse(text string) (*ProcessReceiptResponse, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, invalidResponse(err)
	}
	return decodeReceiptResponse([]byte(raw))
}

// decodeReceiptResponse validates and decodes a body that must be exactly one JSON object
func decodeReceiptResponse(raw []byte) (*ProcessReceiptResponse, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalidResponse(fmt.Errorf("unmarshaling json: %w", err))
	}
	if doc == nil {
		return nil, invalidResponse(errors.New("response is null"))
	}

	if doc["items"] == nil && doc["summary"] == nil {
		return nil, invalidResponse(errors.New("response has neither items nor summary"))
	}

	if err := validateResponse(doc); err != nil {
		return nil, invalidResponse(err)
	}

	var resp ProcessReceiptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, invalidResponse(fmt.Errorf("unmarshaling json: %w", err))
	}

	if resp.Status == "" {
		resp.Status = StatusSuccess
	}
	if resp.Items == nil {
		resp.Items = []ReceiptItem{}
	}
	if resp.Summary != nil {
		resp.Summary.MerchantName = strings.TrimSpace(resp.Summary.MerchantName)
		resp.Summary.Date = normalizeDate(resp.Summary.Date)
	}

	return &resp, nil
}

// normalizeDate rewrites common receipt date formats to YYYY-MM-DD.
// Dates in an unknown format are returned untouched.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
		time.RFC3339,
	}
	for _, format := range formats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return date
}
