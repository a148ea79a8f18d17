package pii

import "regexp"

// Kind identifies a category of personally identifiable information.
type Kind string

const (
	KindSSN        Kind = "ssn"
	KindCreditCard Kind = "credit_card"
	KindEmail      Kind = "email"
	KindPhone      Kind = "phone"
	KindIPAddress  Kind = "ip_address"
	KindIBAN       Kind = "iban"
	KindName       Kind = "name"
	KindAddress    Kind = "address"
)

// Match represents a single PII detection in a piece of text.
// Start and End are byte offsets into the original input.
type Match struct {
	Kind       Kind    `json:"kind"`
	Value      string  `json:"-"` // Never serialize the raw value
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// Pattern pairs a recognizer with a validator for one PII kind.
type Pattern struct {
	Kind         Kind
	Recognizer   *regexp.Regexp
	Group        int // submatch index carrying the value, 0 for whole match
	Validator    func(value string) bool
	CanonicalLen int
	Labels       []string // context labels immediately preceding a match boost confidence
	Placeholder  string
}
