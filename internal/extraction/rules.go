package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule pairs a layout guard with the field extractors for that layout.
// Match receives the folded text (lowercase, no diacritics); Extract receives the
// original text and leaves any field it cannot find empty.
type Rule struct {
	Name    string
	Bank    Bank
	Match   func(folded string) bool
	Extract func(text string) Receipt
}

// rules is evaluated top to bottom and the first match wins. Several guards overlap
// (DeUna receipts mention Banco Pichincha, Pacífico deposits also match the transfer
// guard), so new layouts go above any rule they would otherwise collide with.
// generic must stay last: it always matches.
var rules = []Rule{
	{Name: "deuna", Bank: BankDeuna, Match: containsAny("deuna"), Extract: extractDeuna},
	{Name: "guayaquil", Bank: BankGuayaquil, Match: containsAny("banco guayaquil", "bancoguayaquil"), Extract: extractGuayaquil},
	{Name: "pacifico-deposit", Bank: BankPacifico, Match: both(isPacifico, containsAny("deposito")), Extract: extractPacificoDeposit},
	{Name: "pacifico-transfer", Bank: BankPacifico, Match: isPacifico, Extract: extractPacificoTransfer},
	{Name: "produbanco", Bank: BankProdubanco, Match: containsAny("produbanco"), Extract: extractProdubanco},
	{Name: "pichincha", Bank: BankPichincha, Match: containsAny("pichincha"), Extract: extractPichincha},
	{Name: "bolivariano", Bank: BankBolivariano, Match: containsAny("bolivariano"), Extract: extractBolivariano},
	{Name: "internacional", Bank: BankInternacional, Match: containsAny("banco internacional"), Extract: extractInternacional},
	{Name: "austro", Bank: BankAustro, Match: containsAny("banco del austro"), Extract: extractAustro},
	{Name: "jep", Bank: BankJEP, Match: isJEP, Extract: extractJEP},
	{Name: "generic", Bank: BankUnknown, Match: func(string) bool { return true }, Extract: extractGeneric},
}

// Rules returns the rule table in evaluation order
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

var (
	rePacificoName = regexp.MustCompile(`banco del pacifico|\bbdp\b`)
	reJEPDocument  = regexp.MustCompile(`\bjep-\d+`)

	reComprobanteNumero = regexp.MustCompile(`(?i)N[uú]mero\s*de\s*comprobante\s*:?\s*(\d+)`)
	reComprobante       = regexp.MustCompile(`(?i)Comprobante\s*(?:No\.?|N[°º])?\s*:?\s*(\d+)`)
	reGuayaquilNumero   = regexp.MustCompile(`(?i)(?:No\.?\s*de\s*comprobante|Comprobante\s*No\.?)\s*:?\s*(\d+)`)
	reTransaccion       = regexp.MustCompile(`(?i)(?:Nro\.?|N[uú]mero)\s*de\s*transacci[oó]n\s*:?\s*(\d+)`)
	reTransaccionNo     = regexp.MustCompile(`(?i)Transacci[oó]n\s*No\.?\s*:?\s*(\d+)`)
	reDocumento         = regexp.MustCompile(`(?i)N[uú]mero\s*de\s*documento\s*:?\s*(\d+)`)
	reDocumentoLabel    = regexp.MustCompile(`(?i)Documento\s*:?\s*(\d+)`)
	reReferencia        = regexp.MustCompile(`(?i)Referencia\s*:?\s*(\d+)`)
	reSecuencial        = regexp.MustCompile(`(?i)Secuencial\s*:?\s*(\d+)`)
	reTransferenciaNo   = regexp.MustCompile(`(?i)No\.?\s*(?:de\s*)?Transferencia\s*:?\s*(\d+)`)
	reJEPNumero         = regexp.MustCompile(`(?i)\b(JEP-\d+)`)
	reLooseNo           = regexp.MustCompile(`(?i)\bNo\.\s*(\d+)`)

	reDeunaMonto    = regexp.MustCompile(`(?i)(?:Pagaste|Transferiste|Monto)\s*:?\s*\$\s*(\d[\d.,]*)`)
	reHaEnviado     = regexp.MustCompile(`(?i)ha\s*enviado\s*\$\s*(\d[\d.,]*)`)
	reValorDebitado = regexp.MustCompile(`(?i)Valor\s*debitado\s*:?\s*\$?\s*(\d[\d.,]*)`)
	reComision      = regexp.MustCompile(`(?i)Comisi[oó]n\s*:?\s*\$?\s*(\d[\d.,]*)`)
	reMonto         = regexp.MustCompile(`(?i)Monto\s*:?\s*(?:USD|\$)?\s*(\d[\d.,]*)`)
	reValor         = regexp.MustCompile(`(?i)Valor\s*:?\s*(?:USD|\$)?\s*(\d[\d.,]*)`)
	reCurrency      = regexp.MustCompile(`(?i)(?:\$|USD)\s*(\d[\d.,]*)`)

	reBeneficiario = regexp.MustCompile(`(?i)Beneficiario\s*:?\s*(\p{L}[\p{L} .'-]*)`)
	reNombre       = regexp.MustCompile(`(?i)Nombres?\s*:?\s*(\p{L}[\p{L} .'-]*)`)
	rePara         = regexp.MustCompile(`(?i)\bPara:\s*(\p{L}[\p{L} .'-]*)`)
	reDepositante  = regexp.MustCompile(`(?i)Depositante\s*:?\s*(\p{L}[\p{L} .'-]*)`)
	reOrdenante    = regexp.MustCompile(`(?i)Ordenante\s*:?\s*(\p{L}[\p{L} .'-]*)`)
	reSocio        = regexp.MustCompile(`(?i)Socio\s*:?\s*(\p{L}[\p{L} .'-]*)`)
	reSender       = regexp.MustCompile(`(?im)^\s*(\p{L}[\p{L} .'-]*?)\s+ha\s*enviado`)
)

func containsAny(needles ...string) func(string) bool {
	return func(folded string) bool {
		for _, n := range needles {
			if strings.Contains(folded, n) {
				return true
			}
		}
		return false
	}
}

func both(a, b func(string) bool) func(string) bool {
	return func(folded string) bool {
		return a(folded) && b(folded)
	}
}

func isPacifico(folded string) bool {
	return rePacificoName.MatchString(folded)
}

func isJEP(folded string) bool {
	return strings.Contains(folded, "cooperativa jep") || reJEPDocument.MatchString(folded)
}

// firstGroup returns the trimmed first capture of the first regexp that matches
func firstGroup(text string, res ...*regexp.Regexp) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func amountFrom(text string, res ...*regexp.Regexp) decimal.NullDecimal {
	raw := firstGroup(text, res...)
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, ok := parseAmount(raw)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func payerFrom(text string, res ...*regexp.Regexp) string {
	return cleanName(firstGroup(text, res...))
}

func dateFrom(text string, parsers ...func(string) (string, bool)) (string, bool) {
	for _, p := range parsers {
		if d, ok := p(text); ok {
			return d, true
		}
	}
	return "", false
}

func extractDeuna(text string) Receipt {
	date, found := dateFrom(text, namedDate, numericDate)
	return Receipt{
		Number:    firstGroup(text, reTransaccion),
		Amount:    amountFrom(text, reDeunaMonto),
		Payer:     payerFrom(text, rePara, reNombre),
		Date:      date,
		DateFound: found,
	}
}

// extractGuayaquil reports the transferred value: the debited total minus the commission
func extractGuayaquil(text string) Receipt {
	r := Receipt{
		Number: firstGroup(text, reGuayaquilNumero, reComprobante),
		Payer:  payerFrom(text, reBeneficiario),
	}
	r.Date, r.DateFound = dateFrom(text, numericDate, namedDate)

	debited := amountFrom(text, reValorDebitado)
	if !debited.Valid {
		r.Amount = amountFrom(text, reMonto, reValor)
		return r
	}
	r.Amount = debited
	if fee := amountFrom(text, reComision); fee.Valid {
		r.Amount = decimal.NewNullDecimal(debited.Decimal.Sub(fee.Decimal).Round(2))
	}
	return r
}

// extractPacificoDeposit corrects amounts where OCR dropped the decimal point:
// a bare integer above 99 is read as cents.
func extractPacificoDeposit(text string) Receipt {
	r := Receipt{
		Number: firstGroup(text, reComprobanteNumero, reComprobante),
		Payer:  payerFrom(text, reDepositante, reNombre),
	}
	r.Date, r.DateFound = dateFrom(text, namedDate, numericDate)

	raw := firstGroup(text, reMonto, reValor)
	if d, ok := parseAmount(raw); ok {
		if !hasSeparator(raw) && d.GreaterThan(decimal.NewFromInt(99)) {
			d = d.Div(decimal.NewFromInt(100))
		}
		r.Amount = decimal.NewNullDecimal(d.Round(2))
	}
	return r
}

func extractPacificoTransfer(text string) Receipt {
	date, found := dateFrom(text, namedDate)
	return Receipt{
		Number:    firstGroup(text, reComprobanteNumero),
		Amount:    amountFrom(text, reHaEnviado),
		Payer:     payerFrom(text, reBeneficiario, reSender),
		Date:      date,
		DateFound: found,
	}
}

func extractProdubanco(text string) Receipt {
	date, found := dateFrom(text, numericDate, namedDate)
	return Receipt{
		Number:    firstGroup(text, reTransaccionNo, reTransaccion),
		Amount:    amountFrom(text, reMonto, reValor),
		Payer:     payerFrom(text, reBeneficiario),
		Date:      date,
		DateFound: found,
	}
}

func extractPichincha(text string) Receipt {
	date, found := dateFrom(text, namedDate, numericDate)
	return Receipt{
		Number:    firstGroup(text, reComprobante, reDocumento),
		Amount:    amountFrom(text, reMonto, reValor),
		Payer:     payerFrom(text, reNombre, reBeneficiario),
		Date:      date,
		DateFound: found,
	}
}

func extractBolivariano(text string) Receipt {
	date, found := dateFrom(text, numericDate, namedDate)
	return Receipt{
		Number:    firstGroup(text, reReferencia, reComprobante),
		Amount:    amountFrom(text, reValor, reMonto),
		Payer:     payerFrom(text, reBeneficiario),
		Date:      date,
		DateFound: found,
	}
}

// secuencialWidth is the printed width of Banco Internacional sequence numbers;
// OCR and some app versions drop the leading zeros.
const secuencialWidth = 10

func extractInternacional(text string) Receipt {
	date, found := dateFrom(text, numericDate, namedDate)
	r := Receipt{
		Amount:    amountFrom(text, reMonto, reValor),
		Payer:     payerFrom(text, reBeneficiario),
		Date:      date,
		DateFound: found,
	}
	if n := firstGroup(text, reSecuencial); n != "" {
		r.Number = padNumber(n, secuencialWidth)
	} else {
		r.Number = firstGroup(text, reComprobante)
	}
	return r
}

func extractAustro(text string) Receipt {
	date, found := dateFrom(text, numericDate, namedDate)
	return Receipt{
		Number:    firstGroup(text, reTransferenciaNo, reComprobante),
		Amount:    amountFrom(text, reValor, reMonto),
		Payer:     payerFrom(text, reOrdenante, reBeneficiario),
		Date:      date,
		DateFound: found,
	}
}

func extractJEP(text string) Receipt {
	date, found := dateFrom(text, numericDate, namedDate)
	return Receipt{
		Number:    strings.ToUpper(firstGroup(text, reJEPNumero)),
		Amount:    amountFrom(text, reMonto, reValor),
		Payer:     payerFrom(text, reSocio, reNombre),
		Date:      date,
		DateFound: found,
	}
}

// extractGeneric looks for common labels only; its date is always stamped by the caller.
func extractGeneric(text string) Receipt {
	return Receipt{
		Number: firstGroup(text, reComprobanteNumero, reComprobante, reReferencia, reLooseNo, reDocumentoLabel),
		Amount: amountFrom(text, reCurrency),
		Payer:  payerFrom(text, reBeneficiario, reNombre),
	}
}
