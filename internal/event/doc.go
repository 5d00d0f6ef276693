// Package event provides a pub-sub event bus for decoupled inter-component
// communication in berth.
//
// The readiness monitor and the tunnel manager publish events as they work;
// the CLI output layer and the TUI subscribe to render them. Publishers never
// know who is listening, so the same monitor run can drive plain line output,
// the interactive view, or nothing at all.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Monitor events:
//   - [StageChangedEvent]: Emitted each time the observed stage advances
//   - [DownloadProgressEvent]: Emitted during DOWNLOADING with fresh progress numbers
//   - [PollFailedEvent]: Emitted when a poll cycle exhausts its fetch retries
//   - [MonitorCompletedEvent]: Emitted exactly once when monitoring ends
//
// Tunnel events:
//   - [TunnelCreatedEvent]: Emitted when a tunnel record becomes active
//   - [TunnelStoppedEvent]: Emitted when a tunnel is stopped on request
//   - [TunnelPrunedEvent]: Emitted when a dead tunnel record is discarded
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe("monitor.stage_changed", func(e event.Event) {
//	    sc := e.(event.StageChangedEvent)
//	    fmt.Printf("[%s] %s -> %s\n", sc.InstanceID, sc.PreviousStage, sc.CurrentStage)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewTunnelCreatedEvent("12345", 8188, 8188, 4242, false))
//
//	// Unsubscribe when done
//	id := bus.Subscribe("monitor.completed", handler)
//	bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - monitor.stage_changed, monitor.progress, monitor.poll_failed, monitor.completed
//   - tunnel.created, tunnel.stopped, tunnel.pruned
package event
