package ledger

// Record is a single expense line extracted from OCR text
type Record struct {
	Date          string `json:"date"`   // as printed on the document, hyphen separated; empty if no date seen yet
	Amount        int64  `json:"amount"` // always <= 0
	Usage         string `json:"usage"`
	PaymentMethod string `json:"payment_method"`
	Category      string `json:"category"`
	Note          string `json:"note"`
}

// Columns are the spreadsheet headers in record field order
var Columns = []string{"날짜", "지출금액(원)", "사용처", "결제수단", "카테고리", "비고"}

// Row returns the record's values in Columns order
func (r Record) Row() []interface{} {
	return []interface{}{r.Date, r.Amount, r.Usage, r.PaymentMethod, r.Category, r.Note}
}

// State is carried from line to line while scanning one document
type State struct {
	CurrentDate string
}

// Result is the outcome of scanning a whole document
type Result struct {
	Records  []Record `json:"records"`
	LastDate string   `json:"last_date"`
}
