// Package credential picks the analytics project key for a report.
package credential

import (
	"strings"

	"cspreport/internal/cluster"
)

// Selector holds the fallback keys used when no cluster detail is known.
type Selector struct {
	DevKey  string
	ProdKey string
}

// Select returns the key for a report. A resolved cluster detail decides
// between its own production and development keys. Without one, any
// document URI containing a colon is attributed to development and
// everything else to production.
func (s Selector) Select(detail *cluster.Detail, documentURI string) string {
	if detail != nil {
		if detail.Production {
			return detail.ProdSDKKey
		}
		return detail.DevSDKKey
	}
	if strings.Contains(documentURI, ":") {
		return s.DevKey
	}
	return s.ProdKey
}
