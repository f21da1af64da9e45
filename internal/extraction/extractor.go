// Package extraction classifies OCR text from Ecuadorian payment receipts by bank and
// pulls out the receipt number, amount, date and payer.
//
// Extraction is pure: the same text (and clock reading) always yields the same result,
// and no input makes it panic. Layouts are tried in a fixed order, see Rules.
package extraction

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultMinLength is the shortest text, in runes, considered legible
	DefaultMinLength = 50
	// DefaultTimezone stamps receipts whose date could not be read
	DefaultTimezone = "America/Guayaquil"
)

const (
	hintResend    = "📌 Intente de nuevo con una imagen clara del comprobante."
	hintIllegible = "📌 Asegúrese de que el texto sea legible e intente nuevamente."
	hintNoReceipt = "❌ La imagen no parece ser un comprobante de pago. Asegúrate de enviar una imagen válida."
)

// gateKeywords are folded (lowercase, no accents). At least one must appear.
var gateKeywords = []string{
	"banco",
	"transferencia",
	"no.",
	"valor debitado",
	"comision",
	"fecha",
	"monto",
	"deposito",
	"referencia",
	"ha enviado $",
	"numero de comprobante",
	"comprobante",
	"transaccion",
}

// Extractor turns OCR text into a Receipt
type Extractor struct {
	location  *time.Location
	now       func() time.Time
	minLength int
	rules     []Rule
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLocation sets the timezone used for the fallback date
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMinLength sets the legibility threshold. Zero disables the check.
func WithMinLength(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minLength = n
		}
	}
}

// New creates an Extractor with the default rule table
func New(opts ...Option) *Extractor {
	e := &Extractor{
		location:  DefaultLocation(),
		now:       time.Now,
		minLength: DefaultMinLength,
		rules:     rules,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultLocation returns America/Guayaquil, or a fixed UTC-5 zone when the
// timezone database is unavailable.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("ECT", -5*60*60)
	}
	return loc
}

var defaultExtractor = New()

// Extract runs the default Extractor
func Extract(text string) (*Receipt, error) {
	return defaultExtractor.Extract(text)
}

// Extract classifies text and extracts its fields. On failure the error is a
// *Rejection whose Kind is ErrUnreadable, ErrNotAReceipt or ErrNoReceiptNumber.
func (e *Extractor) Extract(text string) (*Receipt, error) {
	trimmed := strings.TrimSpace(text)
	if e.minLength > 0 && utf8.RuneCountInString(trimmed) < e.minLength {
		return nil, &Rejection{Kind: ErrUnreadable, Hint: hintIllegible}
	}

	folded := fold(trimmed)
	if !hasKeyword(folded) {
		return nil, &Rejection{Kind: ErrNotAReceipt, Hint: hintNoReceipt}
	}

	rule := e.match(folded)
	receipt := rule.Extract(trimmed)
	receipt.Bank = rule.Bank
	receipt.Rule = rule.Name

	if receipt.Number == "" || receipt.Number == "-" {
		return nil, &Rejection{Kind: ErrNoReceiptNumber, Rule: rule.Name, Hint: hintIllegible}
	}
	if !receipt.DateFound {
		receipt.Date = formatNow(e.now().In(e.location))
	}
	return &receipt, nil
}

// Classify reports which rule would handle text, without the gates
func (e *Extractor) Classify(text string) Rule {
	return e.match(fold(text))
}

func (e *Extractor) match(folded string) Rule {
	for _, r := range e.rules {
		if r.Match(folded) {
			return r
		}
	}
	// unreachable while generic is last
	return rules[len(rules)-1]
}

func hasKeyword(folded string) bool {
	for _, k := range gateKeywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// ResendHint is shown when the input was empty or could not be transcribed
func ResendHint() string {
	return hintResend
}
