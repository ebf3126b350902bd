package forward

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mixpanel/mixpanel-go"
)

// MixpanelTracker tracks events with a Mixpanel client bound to the
// credential of each call.
type MixpanelTracker struct {
	httpClient *http.Client
	apiHost    string
}

// NewMixpanelTracker creates a tracker. An empty apiHost uses Mixpanel's
// default endpoint.
func NewMixpanelTracker(httpClient *http.Client, apiHost string) *MixpanelTracker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MixpanelTracker{httpClient: httpClient, apiHost: apiHost}
}

// Track implements Tracker.
func (t *MixpanelTracker) Track(ctx context.Context, credential, event string, props map[string]any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mixpanel: %v", p)
		}
	}()

	mp := t.client(credential)
	return mp.Track(ctx, []*mixpanel.Event{mp.NewEvent(event, "", props)})
}

func (t *MixpanelTracker) client(credential string) *mixpanel.ApiClient {
	if t.apiHost != "" {
		return mixpanel.NewApiClient(credential,
			mixpanel.HttpClient(t.httpClient),
			mixpanel.ProxyApiLocation(t.apiHost),
		)
	}
	return mixpanel.NewApiClient(credential, mixpanel.HttpClient(t.httpClient))
}
