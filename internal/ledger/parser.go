// Package ledger turns OCR text into categorized expense records.
//
// A document is scanned line by line. Date lines update the current date and
// are consumed; every other line that carries an amount becomes a Record
// dated with the most recent date seen.
package ledger

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// 2024.03.15, 2024-3-5, 2024/03/15, 2024 03 15, 2024년 03월 15일
	datePattern = regexp.MustCompile(`20\d{2}\s*[.\-/년 ]\s*\d{1,2}\s*[.\-/년월 ]\s*\d{1,2}`)

	// comma grouped (12,500) before a plain digit run (12500, 500)
	amountPattern = regexp.MustCompile(`-?(?:\d{1,3}(?:,\d{3})+|\d+)`)

	hyphenRun = regexp.MustCompile(`-{2,}`)
)

// Parser extracts records from OCR text
type Parser struct {
	categorizer *Categorizer
}

// NewParser creates a Parser. A nil categorizer uses the default table.
func NewParser(categorizer *Categorizer) *Parser {
	if categorizer == nil {
		categorizer = DefaultCategorizer()
	}
	return &Parser{categorizer: categorizer}
}

// Parse splits text on newlines and scans the lines in order
func (p *Parser) Parse(text string) Result {
	return p.ParseLines(strings.Split(text, "\n"))
}

// ParseLines scans lines in order starting from an empty State
func (p *Parser) ParseLines(lines []string) Result {
	var (
		state   State
		records = make([]Record, 0)
	)
	for _, line := range lines {
		var rec *Record
		state, rec = p.Step(state, line)
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return Result{Records: records, LastDate: state.CurrentDate}
}

// Step processes one line. It returns the next state and, for transaction
// lines, the extracted record.
func (p *Parser) Step(state State, line string) (State, *Record) {
	line = strings.TrimSpace(line)
	if line == "" {
		return state, nil
	}

	if date, ok := matchDate(line); ok {
		state.CurrentDate = date
		return state, nil
	}

	matched, amount, ok := matchAmount(line)
	if !ok {
		return state, nil
	}

	usage := strings.TrimSpace(strings.Replace(line, matched, "", 1))
	return state, &Record{
		Date:     state.CurrentDate,
		Amount:   amount,
		Usage:    usage,
		Category: p.categorizer.Categorize(usage),
	}
}

// matchDate finds the first date in line and normalizes it to digits and hyphens
func matchDate(line string) (string, bool) {
	m := datePattern.FindString(line)
	if m == "" {
		return "", false
	}
	date := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, m)
	date = hyphenRun.ReplaceAllString(date, "-")
	return strings.Trim(date, "-"), true
}

// matchAmount finds the first amount in line after removing spaces. It returns
// the matched text as found and the amount forced negative.
func matchAmount(line string) (string, int64, bool) {
	m := amountPattern.FindString(strings.ReplaceAll(line, " ", ""))
	if m == "" {
		return "", 0, false
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
	if err != nil {
		// out of range; the line is not a usable transaction
		return "", 0, false
	}
	if v > 0 {
		v = -v
	}
	return m, v, true
}
