// Package normalize canonicalizes raw PII strings into the single textual
// form used before hashing or identity comparison. Every function is pure:
// invalid input yields the empty string plus a logged warning, never an
// error. The same normalization must run on both the producer and any later
// verifier or hashed identity comparison silently breaks.
package normalize

import (
	"log"
	"regexp"
	"strings"
)

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

const countryCodeBR = "55"

// Email lowercases and trims the address, rejecting anything that fails a
// basic local@domain.tld shape check.
func Email(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return ""
	}
	if !emailRe.MatchString(v) {
		log.Printf("normalize: rejected malformed email %q", raw)
		return ""
	}
	return v
}

// Phone strips everything but digits, drops a leading 55 country code when
// present, and accepts only the 10/11 digit Brazilian landline/mobile
// shapes. When withCountryCode is true the 55 prefix is re-prepended on the
// normalized result.
func Phone(raw string, withCountryCode bool) string {
	digits := nonDigitRe.ReplaceAllString(raw, "")
	if len(digits) > 11 && strings.HasPrefix(digits, countryCodeBR) {
		digits = digits[len(countryCodeBR):]
	}
	if len(digits) != 10 && len(digits) != 11 {
		if raw != "" {
			log.Printf("normalize: rejected phone %q (%d digits after cleanup)", raw, len(digits))
		}
		return ""
	}
	if withCountryCode {
		return countryCodeBR + digits
	}
	return digits
}

// Name lowercases, trims and collapses internal whitespace, then splits
// into the first token and the remaining tokens joined by single spaces.
func Name(raw string) (first, last string) {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	if len(tokens) == 0 {
		return "", ""
	}
	if len(tokens) == 1 {
		return tokens[0], ""
	}
	return tokens[0], strings.Join(tokens[1:], " ")
}

// City lowercases and trims.
func City(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// stateCodes maps full Brazilian state names (accented and plain spellings)
// to their two-letter codes.
var stateCodes = map[string]string{
	"acre":                "ac",
	"alagoas":             "al",
	"amapá":               "ap",
	"amapa":               "ap",
	"amazonas":            "am",
	"bahia":               "ba",
	"ceará":               "ce",
	"ceara":               "ce",
	"distrito federal":    "df",
	"espírito santo":      "es",
	"espirito santo":      "es",
	"goiás":               "go",
	"goias":               "go",
	"maranhão":            "ma",
	"maranhao":            "ma",
	"mato grosso":         "mt",
	"mato grosso do sul":  "ms",
	"minas gerais":        "mg",
	"pará":                "pa",
	"para":                "pa",
	"paraíba":             "pb",
	"paraiba":             "pb",
	"paraná":              "pr",
	"parana":              "pr",
	"pernambuco":          "pe",
	"piauí":               "pi",
	"piaui":               "pi",
	"rio de janeiro":      "rj",
	"rio grande do norte": "rn",
	"rio grande do sul":   "rs",
	"rondônia":            "ro",
	"rondonia":            "ro",
	"roraima":             "rr",
	"santa catarina":      "sc",
	"são paulo":           "sp",
	"sao paulo":           "sp",
	"sergipe":             "se",
	"tocantins":           "to",
}

// State lowercases and trims, mapping full state names to their two-letter
// codes. Values already in two-letter form pass through.
func State(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return ""
	}
	if code, ok := stateCodes[v]; ok {
		return code
	}
	if len(v) == 2 {
		return v
	}
	log.Printf("normalize: unknown state %q", raw)
	return ""
}

// Zip must reduce to exactly 8 digits (Brazilian CEP).
func Zip(raw string) string {
	digits := nonDigitRe.ReplaceAllString(raw, "")
	if len(digits) != 8 {
		if raw != "" {
			log.Printf("normalize: rejected zip %q (%d digits after cleanup)", raw, len(digits))
		}
		return ""
	}
	return digits
}

// Country lowercases and trims, defaulting to "br" when absent.
func Country(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "br"
	}
	return v
}
