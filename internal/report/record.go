// Package report turns untrusted CSP violation payloads into flat records.
package report

import (
	"maps"

	"github.com/goccy/go-json"
)

// Kind tags whether a Record carries a parsed csp-report.
type Kind int

const (
	Valid Kind = iota
	ParseError
)

// String returns the value written to the "parse" field.
func (k Kind) String() string {
	if k == Valid {
		return "valid"
	}
	return "error"
}

// Record field names.
const (
	FieldTimestamp        = "timestamp"
	FieldClientIP         = "client-ip"
	FieldUserAgent        = "user-agent"
	FieldImmediateReferer = "immediate-referer"
	FieldParse            = "parse"
	FieldError            = "error"

	FieldDocumentURI = "document-uri"
	FieldReferrer    = "referrer"
)

// Record is the canonical form of one received report.
//
// Fields holds the header-derived values, the timestamp and, for Valid
// records only, every field copied from the csp-report object. Reason is
// empty for Valid records and non-empty for ParseError records.
type Record struct {
	Kind   Kind
	Reason string
	Fields map[string]any
}

// Properties flattens the record into a single map including the
// "parse" and "error" fields. The returned map is a fresh copy.
func (r Record) Properties() map[string]any {
	props := make(map[string]any, len(r.Fields)+2)
	maps.Copy(props, r.Fields)
	props[FieldParse] = r.Kind.String()
	props[FieldError] = r.Reason
	return props
}

// StringField returns the named field if it is a string, or "".
func (r Record) StringField(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// DocumentURI returns the reported document-uri, or "" when absent.
func (r Record) DocumentURI() string {
	return r.StringField(FieldDocumentURI)
}

// Referrer returns the reported referrer and whether it was present.
func (r Record) Referrer() (string, bool) {
	v, ok := r.Fields[FieldReferrer]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MarshalJSON encodes the flattened properties.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Properties())
}
