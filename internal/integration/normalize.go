package integration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize rounds a raw textual result to precision decimal places,
// half-up. Precision zero yields the integer textual form with no decimal
// point. A nil precision or an unparseable value passes raw through
// unchanged; the parse failure is reported as a recoverable warning string,
// never as an error, so one bad analyte cannot abort the batch.
func Normalize(raw string, precision *int) (string, string) {
	if precision == nil {
		return raw, ""
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw, fmt.Sprintf("value %q is not numeric, stored unrounded", raw)
	}

	p := *precision
	if p < 0 {
		p = 0
	}

	shift := math.Pow(10, float64(p))
	rounded := math.Round(v*shift) / shift
	return strconv.FormatFloat(rounded, 'f', p, 64), ""
}

// DisplayValue is the read-side accessor shared with report rendering. A
// stored value of the shape "select**X**..." is an enum-encoded selection
// and reduces to X; anything else is returned as stored.
func DisplayValue(stored string) string {
	const marker = "select**"
	if !strings.HasPrefix(stored, marker) {
		return stored
	}
	rest := stored[len(marker):]
	if end := strings.Index(rest, "**"); end >= 0 {
		return rest[:end]
	}
	return rest
}
