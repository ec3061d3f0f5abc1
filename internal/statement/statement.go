package statement

import (
	"errors"
	"time"

	"github.com/zombor/ocr-ledger/internal/ledger"
)

var (
	// ErrNotFound is returned when no statement has the requested ID
	ErrNotFound = errors.New("statement not found")

	// ErrNoText is returned when recognition produced no text at all
	ErrNoText = errors.New("no text could be recognized; try a sharper image")

	// ErrNoTransactions is returned when text was recognized but no line held an amount
	ErrNoTransactions = errors.New("text was recognized but no transactions could be parsed")
)

// Statement is one scanned document and the records parsed from it
type Statement struct {
	ID          string          `json:"id"`
	Filename    string          `json:"filename,omitempty"` // empty for pasted text
	ContentType string          `json:"content_type,omitempty"`
	Text        string          `json:"text"` // recognized text as returned by the recognizer
	Records     []ledger.Record `json:"records"`
	LastDate    string          `json:"last_date,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Total returns the sum of all record amounts
func (s *Statement) Total() int64 {
	var total int64
	for _, r := range s.Records {
		total += r.Amount
	}
	return total
}
