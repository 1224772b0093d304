package crossbar

import (
	"time"

	"github.com/google/uuid"
)

// Well-known internal channel suffixes; the full names carry the
// configured system prefix (default "$").
const (
	lifecycleChannelSuffix = "channel.lifecycle"
	errorChannelSuffix     = "errors"
)

// LifecycleEventType identifies a lifecycle event.
type LifecycleEventType string

const (
	LifecycleChannelCreated      LifecycleEventType = "channel-created"
	LifecycleSubscriptionAdded   LifecycleEventType = "subscription-added"
	LifecycleSubscriptionRemoved LifecycleEventType = "subscription-removed"
)

// LifecycleEvent is the body published on the lifecycle system channel
// when lifecycle tracking is enabled.
type LifecycleEvent struct {
	Type             LifecycleEventType
	Channel          string
	SubscriptionID   string
	SubscriptionName string
	At               time.Time
}

// ErrorKind classifies an error report.
type ErrorKind string

const (
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindPublishFailure   ErrorKind = "publish-failure"
	ErrorKindTypeMismatch     ErrorKind = "type-mismatch"
	ErrorKindInvalidOperation ErrorKind = "invalid-operation"
	ErrorKindOther            ErrorKind = "other"
)

// Severity grades an error report.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorReport is the body published on the error system channel for
// runtime failures that must not propagate to publishers.
type ErrorReport struct {
	ID             string
	TimestampUtc   time.Time
	ErrorType      ErrorKind
	Severity       Severity
	ChannelName    string
	SubscriptionID string
	Message        string
	Metadata       map[string]string
}

// LifecycleChannelName returns the full name of the lifecycle channel.
func (cb *CrossBar) LifecycleChannelName() string {
	return cb.cfg.SystemChannelPrefix + lifecycleChannelSuffix
}

// ErrorChannelName returns the full name of the error report channel.
func (cb *CrossBar) ErrorChannelName() string {
	return cb.cfg.SystemChannelPrefix + errorChannelSuffix
}

// emitLifecycle publishes ev on the lifecycle channel. Events about system
// channels are suppressed so lifecycle emission cannot recurse. Callers
// must not hold registry or channel locks.
func (cb *CrossBar) emitLifecycle(ev LifecycleEvent) {
	if !cb.cfg.EnableLifecycleTracking || cb.closed.Load() {
		return
	}
	if cb.cfg.isSystemChannel(ev.Channel) {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := Publish(cb, cb.LifecycleChannelName(), ev, WithFrom("crossbar")); err != nil {
		cb.log.Debug().Err(err).Msg("lifecycle event dropped")
	}
}

// reportError publishes r on the error channel and logs it. Reports about
// system channels are logged only, so error reporting cannot recurse.
func (cb *CrossBar) reportError(r ErrorReport) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TimestampUtc.IsZero() {
		r.TimestampUtc = time.Now().UTC()
	}

	ev := cb.log.Warn()
	if r.Severity == SeverityError || r.Severity == SeverityCritical {
		ev = cb.log.Error()
	}
	ev.Str("error_type", string(r.ErrorType)).
		Str("channel", r.ChannelName).
		Str("subscription_id", r.SubscriptionID).
		Msg(r.Message)

	if cb.closed.Load() || cb.cfg.isSystemChannel(r.ChannelName) {
		return
	}
	if err := Publish(cb, cb.ErrorChannelName(), r, WithFrom("crossbar")); err != nil {
		cb.log.Debug().Err(err).Msg("error report dropped")
	}
}
