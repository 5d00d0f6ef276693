package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "monitor.stage_changed", "tunnel.created")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Monitor Events
// -----------------------------------------------------------------------------

// Stage represents a provisioning stage as seen by event subscribers.
// Mirrors monitor.Stage for decoupling.
type Stage string

const (
	StageInitializing Stage = "INITIALIZING"
	StageProvisioning Stage = "PROVISIONING"
	StageDownloading  Stage = "DOWNLOADING"
	StageStartingApp  Stage = "STARTING_APP"
	StageReady        Stage = "READY"
	StageError        Stage = "ERROR"
)

// StageChangedEvent is emitted each time the observed stage advances.
// The observed stage never regresses, so CurrentStage is always further
// along than PreviousStage (or ERROR).
type StageChangedEvent struct {
	baseEvent
	InstanceID    string        // Instance being monitored
	PreviousStage Stage         // Stage before the transition
	CurrentStage  Stage         // Stage after the transition
	Elapsed       time.Duration // Time since monitoring started
}

// NewStageChangedEvent creates a StageChangedEvent.
func NewStageChangedEvent(instanceID string, previous, current Stage, elapsed time.Duration) StageChangedEvent {
	return StageChangedEvent{
		baseEvent:     newBaseEvent("monitor.stage_changed"),
		InstanceID:    instanceID,
		PreviousStage: previous,
		CurrentStage:  current,
		Elapsed:       elapsed,
	}
}

// DownloadProgressEvent is emitted during the DOWNLOADING stage whenever a
// log excerpt yields fresh progress numbers.
type DownloadProgressEvent struct {
	baseEvent
	InstanceID string        // Instance being monitored
	Completed  int           // Models fully downloaded so far
	Announced  int           // Models the provisioner announced it would fetch
	Bytes      int64         // Bytes transferred for the file in flight
	Speed      string        // Transfer rate as printed in the log (e.g., "42.1 MB/s")
	Elapsed    time.Duration // Time since monitoring started
}

// NewDownloadProgressEvent creates a DownloadProgressEvent.
func NewDownloadProgressEvent(instanceID string, completed, announced int, bytes int64, speed string, elapsed time.Duration) DownloadProgressEvent {
	return DownloadProgressEvent{
		baseEvent:  newBaseEvent("monitor.progress"),
		InstanceID: instanceID,
		Completed:  completed,
		Announced:  announced,
		Bytes:      bytes,
		Speed:      speed,
		Elapsed:    elapsed,
	}
}

// PollFailedEvent is emitted when a poll cycle exhausts its fetch retries.
// Subscribers can surface the retry count before the monitor gives up.
type PollFailedEvent struct {
	baseEvent
	InstanceID  string // Instance being monitored
	Consecutive int    // Failed cycles in a row
	MaxFailures int    // Threshold at which the monitor reports ERROR
	Err         string // Last fetch error
}

// NewPollFailedEvent creates a PollFailedEvent.
func NewPollFailedEvent(instanceID string, consecutive, maxFailures int, errMsg string) PollFailedEvent {
	return PollFailedEvent{
		baseEvent:   newBaseEvent("monitor.poll_failed"),
		InstanceID:  instanceID,
		Consecutive: consecutive,
		MaxFailures: maxFailures,
		Err:         errMsg,
	}
}

// MonitorCompletedEvent is emitted exactly once when monitoring ends.
type MonitorCompletedEvent struct {
	baseEvent
	InstanceID string        // Instance that was monitored
	Stage      Stage         // Final stage (READY or ERROR, or last observed on cancel)
	Success    bool          // True iff Stage is READY
	Reason     string        // "ready", "unreachable", "timeout", "provisioning failed", or "canceled"
	ReadyURL   string        // GUI URL from the readiness line, when present
	Elapsed    time.Duration // Total monitoring time
}

// NewMonitorCompletedEvent creates a MonitorCompletedEvent.
func NewMonitorCompletedEvent(instanceID string, stage Stage, reason, readyURL string, elapsed time.Duration) MonitorCompletedEvent {
	return MonitorCompletedEvent{
		baseEvent:  newBaseEvent("monitor.completed"),
		InstanceID: instanceID,
		Stage:      stage,
		Success:    stage == StageReady,
		Reason:     reason,
		ReadyURL:   readyURL,
		Elapsed:    elapsed,
	}
}

// -----------------------------------------------------------------------------
// Tunnel Events
// -----------------------------------------------------------------------------

// TunnelCreatedEvent is emitted when a tunnel record becomes active, whether
// freshly spawned or returned unchanged from an existing live record.
type TunnelCreatedEvent struct {
	baseEvent
	InstanceID string // Instance the tunnel belongs to
	LocalPort  int    // Local end of the forward
	RemotePort int    // Remote end of the forward
	PID        int    // Process ID of the ssh child
	Reused     bool   // True when an existing live tunnel was returned
}

// NewTunnelCreatedEvent creates a TunnelCreatedEvent.
func NewTunnelCreatedEvent(instanceID string, localPort, remotePort, pid int, reused bool) TunnelCreatedEvent {
	return TunnelCreatedEvent{
		baseEvent:  newBaseEvent("tunnel.created"),
		InstanceID: instanceID,
		LocalPort:  localPort,
		RemotePort: remotePort,
		PID:        pid,
		Reused:     reused,
	}
}

// TunnelStoppedEvent is emitted when a tunnel is stopped on request.
type TunnelStoppedEvent struct {
	baseEvent
	InstanceID string // Instance the tunnel belonged to
	LocalPort  int    // Port that was released
	PID        int    // Process that was terminated
}

// NewTunnelStoppedEvent creates a TunnelStoppedEvent.
func NewTunnelStoppedEvent(instanceID string, localPort, pid int) TunnelStoppedEvent {
	return TunnelStoppedEvent{
		baseEvent:  newBaseEvent("tunnel.stopped"),
		InstanceID: instanceID,
		LocalPort:  localPort,
		PID:        pid,
	}
}

// TunnelPrunedEvent is emitted when a dead tunnel record is discarded during
// a list or create operation.
type TunnelPrunedEvent struct {
	baseEvent
	InstanceID string // Instance whose record was pruned
	LocalPort  int    // Port that was released
	PID        int    // Dead process recorded in the stale entry
}

// NewTunnelPrunedEvent creates a TunnelPrunedEvent.
func NewTunnelPrunedEvent(instanceID string, localPort, pid int) TunnelPrunedEvent {
	return TunnelPrunedEvent{
		baseEvent:  newBaseEvent("tunnel.pruned"),
		InstanceID: instanceID,
		LocalPort:  localPort,
		PID:        pid,
	}
}
