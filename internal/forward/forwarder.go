// Package forward submits normalized reports to the analytics backend.
package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cspreport/internal/cluster"
	"cspreport/internal/metrics"
	"cspreport/internal/report"
)

// EventName is the analytics event every report is tracked under.
const EventName = "csp-report"

// DefaultTimeout bounds a single submission.
const DefaultTimeout = 10 * time.Second

// Event properties added on top of the record's own fields.
const (
	PropClusterID   = "clusterId"
	PropClusterName = "clusterName"
	PropHostAppURL  = "hostAppUrl"
	PropInsertID    = "$insert_id"
)

var ErrMissingCredential = errors.New("forward: analytics credential is empty")

// Tracker submits one event to an analytics project and returns once the
// backend has acknowledged or rejected it.
type Tracker interface {
	Track(ctx context.Context, credential, event string, props map[string]any) error
}

// Forwarder sends records through a Tracker.
type Forwarder struct {
	tracker Tracker
	timeout time.Duration
	metrics *metrics.Metrics
}

// New creates a Forwarder. A non-positive timeout selects DefaultTimeout.
func New(t Tracker, timeout time.Duration, m *metrics.Metrics) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{tracker: t, timeout: timeout, metrics: m}
}

// Forward tracks rec under credential and waits for the result. The
// submission is bounded by the forwarder's timeout and outlives ctx
// cancellation, so a client hanging up does not drop its report.
func (f *Forwarder) Forward(ctx context.Context, rec report.Record, detail *cluster.Detail, credential string) error {
	start := time.Now()
	err := f.track(ctx, rec, detail, credential)
	f.metrics.ObserveForward(err == nil, time.Since(start))
	return err
}

func (f *Forwarder) track(ctx context.Context, rec report.Record, detail *cluster.Detail, credential string) error {
	if credential == "" {
		return ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	if err := f.tracker.Track(ctx, credential, EventName, Properties(rec, detail)); err != nil {
		return fmt.Errorf("track %s: %w", EventName, err)
	}
	return nil
}

// Properties builds the event payload for rec. Cluster fields are only set
// when detail is known; hostAppUrl mirrors the reported referrer.
func Properties(rec report.Record, detail *cluster.Detail) map[string]any {
	props := rec.Properties()
	if detail != nil {
		props[PropClusterID] = detail.ClusterID
		props[PropClusterName] = detail.ClusterName
	}
	if ref, ok := rec.Fields[report.FieldReferrer]; ok {
		props[PropHostAppURL] = ref
	}
	props[PropInsertID] = uuid.NewString()
	return props
}
