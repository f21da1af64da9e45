package extraction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bank identifies the receipt layout that matched
type Bank string

const (
	BankDeuna         Bank = "DEUNA"
	BankGuayaquil     Bank = "BANCO GUAYAQUIL"
	BankPacifico      Bank = "BANCO DEL PACÍFICO"
	BankProdubanco    Bank = "PRODUBANCO"
	BankPichincha     Bank = "BANCO PICHINCHA"
	BankBolivariano   Bank = "BANCO BOLIVARIANO"
	BankInternacional Bank = "BANCO INTERNACIONAL"
	BankAustro        Bank = "BANCO DEL AUSTRO"
	BankJEP           Bank = "COOPERATIVA JEP"
	BankUnknown       Bank = "DESCONOCIDO"
)

// Receipt holds the fields extracted from a payment receipt.
// Only Number is authoritative; the rest are best effort.
type Receipt struct {
	Bank      Bank                `json:"banco"`
	Rule      string              `json:"regla"`
	Number    string              `json:"numero"`
	Payer     string              `json:"nombres,omitempty"`
	Amount    decimal.NullDecimal `json:"monto"`
	Date      string              `json:"fecha"`
	DateFound bool                `json:"fecha_encontrada"`
}

// AmountString renders the amount with two decimals, or "-" when absent
func (r *Receipt) AmountString() string {
	if !r.Amount.Valid {
		return "-"
	}
	return r.Amount.Decimal.StringFixed(2)
}

var (
	// ErrUnreadable means the text is too short to be a legible receipt
	ErrUnreadable = errors.New("text too short to be legible")
	// ErrNotAReceipt means none of the receipt keywords were found
	ErrNotAReceipt = errors.New("text does not look like a payment receipt")
	// ErrNoReceiptNumber means a layout matched but no receipt number was found
	ErrNoReceiptNumber = errors.New("no receipt number found")
)

// Rejection is returned when the text cannot be turned into a Receipt.
// Kind is one of the Err* sentinels above.
type Rejection struct {
	Kind error
	Rule string
	Hint string
}

func (r *Rejection) Error() string {
	if r.Rule != "" {
		return fmt.Sprintf("receipt rejected by rule %s: %v", r.Rule, r.Kind)
	}
	return fmt.Sprintf("receipt rejected: %v", r.Kind)
}

func (r *Rejection) Unwrap() error {
	return r.Kind
}
