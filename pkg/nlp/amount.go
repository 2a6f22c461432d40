package nlp

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountExpr accepts "1.234,56" (dot thousands, comma decimals) before the plain
// "150", "150,5" and "150.50" forms, optionally prefixed with "r$" and
// followed by a "mil"/"k" multiplier.
const amountExpr = `(?:r\$\s*)?(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d{1,2})?)(?:\s*(mil|k)\b)?`

var (
	amountPattern        = regexp.MustCompile(amountExpr)
	purchasePricePattern = regexp.MustCompile(`\bcomprei\b.*?\bpor\s+` + amountExpr)
)

// ParseAmount normalizes a locale amount string into a decimal. The decimal
// comma becomes a dot; dot thousand separators are dropped.
func ParseAmount(raw string, multiplier string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if strings.Count(s, ".") > 1 || thousandsOnly(s) {
		s = strings.ReplaceAll(s, ".", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}

	switch multiplier {
	case "mil", "k":
		amount = amount.Mul(decimal.NewFromInt(1000))
	}
	return amount, true
}

// thousandsOnly reports "1.500"-style input: a single dot followed by exactly three digits.
func thousandsOnly(s string) bool {
	i := strings.IndexByte(s, '.')
	return i > 0 && len(s)-i-1 == 3
}

// extractAmount returns the first amount in folded text.
func extractAmount(folded string) (decimal.Decimal, bool) {
	m := amountPattern.FindStringSubmatch(folded)
	if m == nil {
		return decimal.Zero, false
	}
	return ParseAmount(m[1], m[2])
}

// extractAnchoredAmount returns the amount captured by the first anchor that
// matches, so a day or a quantity mentioned earlier is not taken for the value.
// Without an anchored match it falls back to the first amount in the text.
func extractAnchoredAmount(folded string, anchors ...*regexp.Regexp) (decimal.Decimal, bool) {
	for _, p := range anchors {
		m := p.FindStringSubmatch(folded)
		if m == nil {
			continue
		}
		if amount, ok := ParseAmount(m[1], m[2]); ok {
			return amount, true
		}
	}
	return extractAmount(folded)
}

// keywordAmountPattern matches the first amount after any of the keywords.
func keywordAmountPattern(keywords []string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + strings.Join(keywords, "|") + `)\b\D*?` + amountExpr)
}

// extractPurchasePrice handles "comprei <item> por <amount>", where the first
// number may be a quantity rather than the price.
func extractPurchasePrice(folded string) (decimal.Decimal, bool) {
	m := purchasePricePattern.FindStringSubmatch(folded)
	if m == nil {
		return decimal.Zero, false
	}
	return ParseAmount(m[1], m[2])
}
