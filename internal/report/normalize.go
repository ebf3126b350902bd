package report

import (
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/goccy/go-json"
)

const (
	// ReasonNotFound is the error recorded when the body has no usable csp-report.
	ReasonNotFound = "csp-report object not found"

	reasonNotObject = "csp-report is not an object"
	cspReportKey    = "csp-report"
)

// now is replaced in tests.
var now = time.Now

// HeaderGetter is satisfied by http.Header.
type HeaderGetter interface {
	Get(key string) string
}

// Normalize builds a Record from request headers and a decoded JSON body.
// It never panics: anything that goes wrong while reading the inputs is
// reported as a ParseError record.
func Normalize(h HeaderGetter, body any) (rec Record) {
	rec = Record{
		Kind: ParseError,
		Fields: map[string]any{
			FieldTimestamp:        now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			FieldClientIP:         "",
			FieldUserAgent:        "",
			FieldImmediateReferer: "",
		},
	}

	defer func() {
		if p := recover(); p != nil {
			rec.Kind = ParseError
			rec.Reason = fmt.Sprint(p)
			if rec.Reason == "" {
				rec.Reason = "normalize: recovered panic"
			}
		}
	}()

	rec.Fields[FieldClientIP] = h.Get("X-Forwarded-For")
	rec.Fields[FieldUserAgent] = h.Get("User-Agent")
	rec.Fields[FieldImmediateReferer] = h.Get("Referer")

	obj, _ := body.(map[string]any)
	raw, ok := obj[cspReportKey]
	if !ok || !truthy(raw) {
		rec.Reason = ReasonNotFound
		return rec
	}

	csp, ok := raw.(map[string]any)
	if !ok {
		rec.Reason = reasonNotObject
		return rec
	}

	maps.Copy(rec.Fields, csp)
	rec.Kind = Valid
	rec.Reason = ""
	return rec
}

// NormalizeJSON decodes raw as JSON and normalizes it. A body that is not
// valid JSON yields a ParseError record describing the decode failure.
func NormalizeJSON(h HeaderGetter, raw []byte) Record {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		rec := Normalize(h, nil)
		rec.Kind = ParseError
		rec.Reason = "invalid JSON body: " + err.Error()
		return rec
	}
	return Normalize(h, body)
}

// truthy follows JavaScript truthiness for decoded JSON values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case json.Number:
		return x != "" && x != "0"
	default:
		return true
	}
}
