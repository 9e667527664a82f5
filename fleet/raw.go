package fleet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/generic"
)

// =============================================================================
// RAW DATE - Tagged union of the two date shapes the document store holds
// =============================================================================

type dateKind int

const (
	dateMissing dateKind = iota
	dateTimestamp
	dateText
)

// RawDate is either a structured timestamp (epoch seconds + nanoseconds) or
// free text. Decoding never fails: a shape that is neither is kept as
// missing and rejected later by Resolve, so one bad record cannot break a
// whole document.
type RawDate struct {
	kind    dateKind
	seconds int64
	nanos   int64
	text    string
}

func TimestampDate(seconds, nanos int64) RawDate {
	return RawDate{kind: dateTimestamp, seconds: seconds, nanos: nanos}
}

func TextDate(s string) RawDate {
	return RawDate{kind: dateText, text: s}
}

func (d RawDate) IsTimestamp() bool { return d.kind == dateTimestamp }
func (d RawDate) IsText() bool      { return d.kind == dateText }
func (d RawDate) IsMissing() bool   { return d.kind == dateMissing }
func (d RawDate) Seconds() int64    { return d.seconds }
func (d RawDate) Nanos() int64      { return d.nanos }
func (d RawDate) Text() string      { return d.text }

func (d RawDate) String() string {
	switch d.kind {
	case dateTimestamp:
		return fmt.Sprintf("ts(%d.%09d)", d.seconds, d.nanos)
	case dateText:
		return strconv.Quote(d.text)
	default:
		return "<missing>"
	}
}

// textLayouts are tried in order. Layouts without a zone yield the written
// calendar date as-is.
var textLayouts = []struct {
	layout string
	zoned  bool
}{
	{"2006-01-02", false},
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04:05.000", false},
}

// Resolve converts the raw date into a calendar date. Timestamps are read in
// loc; zoned text is converted into loc; unzoned text is taken literally.
func (d RawDate) Resolve(loc *time.Location) (generic.TimePoint, error) {
	switch d.kind {
	case dateTimestamp:
		if d.nanos < 0 || d.nanos >= int64(time.Second) {
			return generic.TimePoint{}, fmt.Errorf("%w: nanoseconds out of range in %s", generic.ErrInvalidDate, d)
		}
		return generic.DateIn(time.Unix(d.seconds, d.nanos), loc), nil

	case dateText:
		s := strings.TrimSpace(d.text)
		for _, l := range textLayouts {
			t, err := time.Parse(l.layout, s)
			if err != nil {
				continue
			}
			if l.zoned {
				return generic.DateIn(t, loc), nil
			}
			return generic.DateOf(t), nil
		}
		return generic.TimePoint{}, fmt.Errorf("%w: unrecognized date text %s", generic.ErrInvalidDate, d)
	}

	return generic.TimePoint{}, fmt.Errorf("%w: date missing", generic.ErrInvalidDate)
}

type timestampJSON struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

// UnmarshalJSON accepts {"seconds":N,"nanoseconds":M}, the underscored
// variant, a bare number of epoch seconds, or a string.
func (d *RawDate) UnmarshalJSON(b []byte) error {
	*d = RawDate{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*d = TextDate(s)
		}
	case '{':
		var ts timestampJSON
		if err := json.Unmarshal(b, &ts); err != nil {
			return nil
		}
		switch {
		case ts.Seconds != nil:
			*d = TimestampDate(*ts.Seconds, ts.Nanoseconds)
		case ts.USeconds != nil:
			*d = TimestampDate(*ts.USeconds, ts.UNanoseconds)
		}
	default:
		if secs, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			*d = TimestampDate(secs, 0)
		}
	}
	return nil
}

func (d RawDate) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case dateTimestamp:
		return json.Marshal(map[string]int64{"seconds": d.seconds, "nanoseconds": d.nanos})
	case dateText:
		return json.Marshal(d.text)
	default:
		return []byte("null"), nil
	}
}

// =============================================================================
// RAW AMOUNT - Permissive string-or-number money value
// =============================================================================

// RawAmount keeps the source text of an amount. Decimal coerces anything
// missing, non-numeric or negative to zero.
type RawAmount struct {
	raw string
}

// AmountText wraps source text as an amount.
func AmountText(s string) RawAmount { return RawAmount{raw: s} }

// AmountOf wraps a decimal as an amount.
func AmountOf(d decimal.Decimal) RawAmount { return RawAmount{raw: d.String()} }

func (a RawAmount) Raw() string { return a.raw }

// Parse returns the amount and whether the source text was a valid number.
func (a RawAmount) Parse() (decimal.Decimal, bool) {
	s := strings.TrimSpace(a.raw)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// Decimal returns the coerced, non-negative value.
func (a RawAmount) Decimal() decimal.Decimal {
	v, ok := a.Parse()
	if !ok || v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func (a *RawAmount) UnmarshalJSON(b []byte) error {
	*a = RawAmount{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			a.raw = s
		}
		return nil
	}
	if b[0] == '{' || b[0] == '[' || b[0] == 't' || b[0] == 'f' {
		return nil
	}
	a.raw = string(b)
	return nil
}

func (a RawAmount) MarshalJSON() ([]byte, error) {
	if a.raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(a.raw)
}
