package bank

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const cardTokenPrefix = "tok_"

// CardTokenizer replaces a card number with a stable opaque reference. The
// same number under the same key always yields the same token, so repeated
// submissions can be matched without keeping the number.
type CardTokenizer struct {
	key []byte
}

// NewCardTokenizer creates a tokenizer keyed with key
func NewCardTokenizer(key string) *CardTokenizer {
	if key == "" {
		key = DefaultOptions().CardTokenKey
	}
	return &CardTokenizer{key: []byte(key)}
}

// Tokenize returns the token for number. Separators are ignored.
func (t *CardTokenizer) Tokenize(number string) string {
	mac := hmac.New(sha256.New, t.key)
	mac.Write([]byte(NormalizeCardNumber(number)))
	return cardTokenPrefix + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// NormalizeCardNumber strips spaces and dashes
func NormalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(number))
}

// CardBrand guesses the network from the number prefix
func CardBrand(number string) string {
	n := NormalizeCardNumber(number)
	switch {
	case strings.HasPrefix(n, "4"):
		return "visa"
	case hasRangePrefix(n, 51, 55, 2) || hasRangePrefix(n, 2221, 2720, 4):
		return "mastercard"
	case strings.HasPrefix(n, "34") || strings.HasPrefix(n, "37"):
		return "amex"
	case strings.HasPrefix(n, "6011") || strings.HasPrefix(n, "65"):
		return "discover"
	default:
		return "unknown"
	}
}

func hasRangePrefix(n string, lo, hi, width int) bool {
	if len(n) < width {
		return false
	}
	v := 0
	for _, r := range n[:width] {
		if r < '0' || r > '9' {
			return false
		}
		v = v*10 + int(r-'0')
	}
	return v >= lo && v <= hi
}

func lastFour(number string) string {
	n := NormalizeCardNumber(number)
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}
