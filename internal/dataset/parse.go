package dataset

import (
	"strconv"
	"strings"
	"time"
)

// DefaultNullValues are the cell spellings read as missing when
// Options.NullValues is nil. Blank cells are always missing.
var DefaultNullValues = []string{"null", "n/a", "#n/a"}

// ParseCell converts a raw text cell into a typed Value.
func ParseCell(s string, opt Options) Value {
	raw := strings.TrimSpace(s)
	if opt.isNull(raw) {
		return Null
	}
	switch strings.ToLower(raw) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if looksNumeric(raw) {
		if f, ok := ParseNumeric(raw, opt.DecimalSeparator, opt.ThousandsSeparator); ok {
			return Number(f)
		}
	}
	return String(raw)
}

func (o Options) isNull(raw string) bool {
	if raw == "" {
		return true
	}
	spellings := o.NullValues
	if spellings == nil {
		spellings = DefaultNullValues
	}
	for _, n := range spellings {
		if strings.EqualFold(raw, strings.TrimSpace(n)) {
			return true
		}
	}
	return false
}

// looksNumeric rejects strings with letters other than an exponent marker so
// that codes like "A1" or "0x1F" stay text.
func looksNumeric(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',' || r == ' ' || r == '%' || r == '\u00a0':
		case (r == '-' || r == '+') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case (r == 'e' || r == 'E') && i > 0:
		default:
			return false
		}
	}
	return digits > 0
}

// ParseNumeric parses locale formatted numbers such as "1.000,5", "1,000.5",
// "12.5%" or "3e4". A zero dec auto-detects the decimal separator per value.
func ParseNumeric(s string, dec, thou rune) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "%", "")
	raw = strings.ReplaceAll(raw, "\u00a0", " ")
	raw = strings.TrimSpace(raw)
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0 && strings.Count(raw, ",") == 1 && len(raw)-cpos-1 != 3:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// ParseTime tries the common date layouts seen in exported spreadsheets.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
