// Package internal contains integration tests that verify the packages work
// together the way the CLI wires them: the monitor publishing over the event
// bus, and the tunnel manager sharing the ports document with the allocator.
package internal

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/monitor"
	"github.com/rigstead/berth/internal/ports"
	"github.com/rigstead/berth/internal/testutil"
	"github.com/rigstead/berth/internal/tunnel"
)

// readySource reports a provisioning log that is already complete, so a
// monitor run finishes on its first poll without sleeping.
type readySource struct{}

func (readySource) Fetch(context.Context, instance.Handle) (string, error) {
	return "Provisioning complete!\nTo see the GUI go to: http://localhost:8188", nil
}

func testInstanceHandle() instance.Handle {
	return instance.Handle{ID: "12345", SSHHost: "ssh4.vast.ai", SSHPort: 12034}
}

// TestMonitorPublishesOverBus runs a monitor against the real bus and checks
// that topic subscribers and a wildcard subscriber both observe the run, the
// way the line printer and the TUI bridge do.
func TestMonitorPublishesOverBus(t *testing.T) {
	bus := event.NewBus()

	var mu sync.Mutex
	var stageChanges []event.StageChangedEvent
	var completions []event.MonitorCompletedEvent
	var allTypes []string

	bus.Subscribe("monitor.stage_changed", func(e event.Event) {
		mu.Lock()
		stageChanges = append(stageChanges, e.(event.StageChangedEvent))
		mu.Unlock()
	})
	bus.Subscribe("monitor.completed", func(e event.Event) {
		mu.Lock()
		completions = append(completions, e.(event.MonitorCompletedEvent))
		mu.Unlock()
	})
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		allTypes = append(allTypes, e.EventType())
		mu.Unlock()
	})

	m := monitor.New(readySource{}, config.MonitorConfig{}, bus, nil)
	result, err := m.Run(context.Background(), testInstanceHandle())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stage != monitor.StageReady || result.Reason != monitor.ReasonReady {
		t.Errorf("Result = %+v, want READY/ready", result)
	}
	if result.ReadyURL != "http://localhost:8188" {
		t.Errorf("ReadyURL = %q, want the GUI url", result.ReadyURL)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(stageChanges) != 1 {
		t.Fatalf("got %d stage changes, want 1", len(stageChanges))
	}
	sc := stageChanges[0]
	if sc.InstanceID != "12345" || sc.PreviousStage != event.StageInitializing || sc.CurrentStage != event.StageReady {
		t.Errorf("stage change = %+v, want 12345 INITIALIZING->READY", sc)
	}

	if len(completions) != 1 {
		t.Fatalf("got %d completed events, want 1", len(completions))
	}
	done := completions[0]
	if !done.Success || done.Stage != event.StageReady || done.ReadyURL != "http://localhost:8188" {
		t.Errorf("completed event = %+v, want success at READY with the GUI url", done)
	}

	// The wildcard subscriber sees the same run the topic subscribers do.
	wantTypes := []string{"monitor.stage_changed", "monitor.completed"}
	if len(allTypes) != len(wantTypes) {
		t.Fatalf("wildcard subscriber got %v, want %v", allTypes, wantTypes)
	}
	for i, want := range wantTypes {
		if allTypes[i] != want {
			t.Errorf("event %d = %q, want %q", i, allTypes[i], want)
		}
	}
}

// seedTunnels writes a tunnels document directly, standing in for records
// left behind by earlier invocations.
func seedTunnels(t *testing.T, stateDir string, records map[string]tunnel.Record) {
	t.Helper()
	doc := struct {
		Tunnels map[string]tunnel.Record `json:"tunnels"`
	}{Tunnels: records}
	testutil.WriteStateDoc(t, stateDir, tunnel.FileName, doc)
}

// TestTunnelPruneReleasesPort verifies the lazy sweep across packages: a
// tunnel record whose process is gone disappears from tunnels.json and its
// port allocation disappears from ports.json, while live records survive.
func TestTunnelPruneReleasesPort(t *testing.T) {
	stateDir := t.TempDir()
	ctx := context.Background()

	alloc := ports.New(ports.Options{StateDir: stateDir, BasePort: 42800, Window: 50})

	livePort, err := alloc.Allocate(ctx, "11111")
	if err != nil {
		t.Fatalf("allocate live: %v", err)
	}
	stalePort, err := alloc.Allocate(ctx, "22222")
	if err != nil {
		t.Fatalf("allocate stale: %v", err)
	}

	// The test process stands in for a live forward; the reaped child for a
	// dead one.
	seedTunnels(t, stateDir, map[string]tunnel.Record{
		"11111": {InstanceID: "11111", LocalPort: livePort, SSHHost: "ssh4.vast.ai", SSHPort: 12034,
			RemotePort: 8188, PID: os.Getpid(), CreatedAt: time.Now()},
		"22222": {InstanceID: "22222", LocalPort: stalePort, SSHHost: "ssh5.vast.ai", SSHPort: 12100,
			RemotePort: 8188, PID: testutil.DeadPID(t), CreatedAt: time.Now().Add(-time.Hour)},
	})

	bus := event.NewBus()
	var mu sync.Mutex
	var pruned []event.TunnelPrunedEvent
	bus.Subscribe("tunnel.pruned", func(e event.Event) {
		mu.Lock()
		pruned = append(pruned, e.(event.TunnelPrunedEvent))
		mu.Unlock()
	})

	mgr := tunnel.New(tunnel.Options{StateDir: stateDir, Ports: alloc, Bus: bus})

	live, err := mgr.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(live) != 1 || live[0].InstanceID != "11111" {
		t.Fatalf("live tunnels = %+v, want only 11111", live)
	}

	// The dead record's port must have been released with it.
	allocations, err := alloc.List(ctx)
	if err != nil {
		t.Fatalf("ports.List failed: %v", err)
	}
	if _, ok := allocations["22222"]; ok {
		t.Error("port for the dead tunnel is still allocated")
	}
	if got, ok := allocations["11111"]; !ok || got != livePort {
		t.Errorf("allocations[11111] = %d (%v), want %d", got, ok, livePort)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pruned) != 1 || pruned[0].InstanceID != "22222" {
		t.Errorf("pruned events = %+v, want one for 22222", pruned)
	}
}

// TestPortsPruneFollowsTunnels exercises the ports-prune composition: list
// the live tunnels first, then drop every allocation without one.
func TestPortsPruneFollowsTunnels(t *testing.T) {
	stateDir := t.TempDir()
	ctx := context.Background()

	alloc := ports.New(ports.Options{StateDir: stateDir, BasePort: 42900, Window: 50})

	livePort, err := alloc.Allocate(ctx, "11111")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := alloc.Allocate(ctx, "33333"); err != nil {
		t.Fatalf("allocate orphan: %v", err)
	}

	seedTunnels(t, stateDir, map[string]tunnel.Record{
		"11111": {InstanceID: "11111", LocalPort: livePort, SSHHost: "ssh4.vast.ai", SSHPort: 12034,
			RemotePort: 8188, PID: os.Getpid(), CreatedAt: time.Now()},
	})

	mgr := tunnel.New(tunnel.Options{StateDir: stateDir, Ports: alloc})
	live, err := mgr.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	activeIDs := make([]string, 0, len(live))
	for _, rec := range live {
		activeIDs = append(activeIDs, rec.InstanceID)
	}

	prunedIDs, err := alloc.PruneStale(ctx, activeIDs)
	if err != nil {
		t.Fatalf("PruneStale failed: %v", err)
	}
	if len(prunedIDs) != 1 || prunedIDs[0] != "33333" {
		t.Errorf("pruned = %v, want [33333]", prunedIDs)
	}

	allocations, err := alloc.List(ctx)
	if err != nil {
		t.Fatalf("ports.List failed: %v", err)
	}
	if len(allocations) != 1 {
		t.Errorf("allocations = %v, want only the tunneled instance", allocations)
	}
}

// TestAllocationsSharedAcrossInvocations verifies that two allocators over
// the same state directory behave like two sequential CLI runs.
func TestAllocationsSharedAcrossInvocations(t *testing.T) {
	stateDir := t.TempDir()
	ctx := context.Background()

	first := ports.New(ports.Options{StateDir: stateDir, BasePort: 43000, Window: 50})
	port, err := first.Allocate(ctx, "12345")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	// A fresh allocator reads the same document.
	second := ports.New(ports.Options{StateDir: stateDir, BasePort: 43000, Window: 50})
	again, err := second.Allocate(ctx, "12345")
	if err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if again != port {
		t.Errorf("second invocation got port %d, want the sticky %d", again, port)
	}

	other, err := second.Allocate(ctx, "67890")
	if err != nil {
		t.Fatalf("allocate other: %v", err)
	}
	if other == port {
		t.Errorf("both instances got port %d", port)
	}

	if err := second.Release(ctx, "12345"); err != nil {
		t.Fatalf("release: %v", err)
	}
	allocations, err := first.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if _, ok := allocations["12345"]; ok {
		t.Error("release by one invocation is not visible to another")
	}
}

// TestEventConstructorsIntegration checks that every event the packages
// publish carries its wire type and a sane timestamp.
func TestEventConstructorsIntegration(t *testing.T) {
	before := time.Now()

	events := []struct {
		e        event.Event
		wantType string
	}{
		{event.NewStageChangedEvent("id", event.StageInitializing, event.StageProvisioning, time.Second), "monitor.stage_changed"},
		{event.NewDownloadProgressEvent("id", 1, 3, 500, "40.0 MB/s", time.Second), "monitor.progress"},
		{event.NewPollFailedEvent("id", 1, 18, "boom"), "monitor.poll_failed"},
		{event.NewMonitorCompletedEvent("id", event.StageReady, "ready", "http://localhost:8188", time.Minute), "monitor.completed"},
		{event.NewTunnelCreatedEvent("id", 8188, 8188, 42, false), "tunnel.created"},
		{event.NewTunnelStoppedEvent("id", 8188, 42), "tunnel.stopped"},
		{event.NewTunnelPrunedEvent("id", 8188, 42), "tunnel.pruned"},
	}

	after := time.Now()

	for i, tc := range events {
		if got := tc.e.EventType(); got != tc.wantType {
			t.Errorf("event %d type = %q, want %q", i, got, tc.wantType)
		}
		ts := tc.e.Timestamp()
		if ts.Before(before) || ts.After(after) {
			t.Errorf("event %d timestamp %v outside [%v, %v]", i, ts, before, after)
		}
	}
}
