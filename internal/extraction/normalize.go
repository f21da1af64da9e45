package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var monthNames = map[string]string{
	"ene": "Enero",
	"feb": "Febrero",
	"mar": "Marzo",
	"abr": "Abril",
	"may": "Mayo",
	"jun": "Junio",
	"jul": "Julio",
	"ago": "Agosto",
	"sep": "Septiembre",
	"set": "Septiembre",
	"oct": "Octubre",
	"nov": "Noviembre",
	"dic": "Diciembre",
}

var monthByNumber = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

var (
	// 05 mar. 2024 - 10:15, 8 may 2024 11:02, 15 de enero de 2024
	reNamedDate = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:de\s+)?(ene(?:ro)?|feb(?:rero)?|mar(?:zo)?|abr(?:il)?|may(?:o)?|jun(?:io)?|jul(?:io)?|ago(?:sto)?|sep(?:t(?:iembre)?)?|set(?:iembre)?|oct(?:ubre)?|nov(?:iembre)?|dic(?:iembre)?)\.?\s*(?:de\s+|del\s+)?(\d{4})(?:\s*[-,]?\s*(\d{1,2}:\d{2}))?`)

	// 20/02/2024 09:45, 01-12-2024 07:30
	reNumericDate = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})(?:\s*[-,]?\s*(\d{1,2}:\d{2}))?`)

	reSpaces = regexp.MustCompile(`\s+`)
)

// fold lowercases s and strips diacritics so "Depósito" and "DEPOSITO" compare equal
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

func displayDate(day int, month, year, clock string) string {
	out := fmt.Sprintf("%02d %s %s", day, month, year)
	if clock != "" {
		if len(clock) == 4 {
			clock = "0" + clock
		}
		out += " " + clock
	}
	return out
}

// namedDate parses dates that use a Spanish month name or abbreviation
func namedDate(text string) (string, bool) {
	m := reNamedDate.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return "", false
	}
	month, ok := monthNames[strings.ToLower(m[2])[:3]]
	if !ok {
		return "", false
	}
	return displayDate(day, month, m[3], m[4]), true
}

// numericDate parses dd/mm/yyyy and dd-mm-yyyy dates
func numericDate(text string) (string, bool) {
	m := reNumericDate.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return "", false
	}
	month, err := strconv.Atoi(m[2])
	if err != nil || month < 1 || month > 12 {
		return "", false
	}
	return displayDate(day, monthByNumber[month-1], m[3], m[4]), true
}

// formatNow renders t the same way bank dates are rendered
func formatNow(t time.Time) string {
	return displayDate(t.Day(), monthByNumber[t.Month()-1], strconv.Itoa(t.Year()), t.Format("15:04"))
}

// parseAmount normalizes an OCR'd money string such as "1.250,75", "45,50" or "$ 10.00".
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "$ ")
	s = strings.TrimRight(s, ".,")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Decimal{}, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func hasSeparator(raw string) bool {
	return strings.ContainsAny(strings.TrimRight(strings.TrimSpace(raw), ".,"), ".,")
}

// cleanName collapses whitespace and title-cases an OCR'd person name
func cleanName(raw string) string {
	name := strings.Trim(reSpaces.ReplaceAllString(raw, " "), " .-'")
	if name == "" {
		return ""
	}
	return cases.Title(language.Spanish).String(strings.ToLower(name))
}

func padNumber(n string, width int) string {
	if len(n) >= width {
		return n
	}
	return strings.Repeat("0", width-len(n)) + n
}
