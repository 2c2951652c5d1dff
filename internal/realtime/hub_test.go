package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/meghal86/guardian/internal/scan"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventScanCompleted, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventScanCompleted, EventProviderHealth},
	}}

	completedEvent := &Event{Type: EventScanCompleted}
	healthEvent := &Event{Type: EventProviderHealth}
	progressEvent := &Event{Type: EventScanProgress}

	if !h.shouldSend(client, completedEvent) {
		t.Error("Should receive scan_completed events")
	}
	if !h.shouldSend(client, healthEvent) {
		t.Error("Should receive provider_health events")
	}
	if h.shouldSend(client, progressEvent) {
		t.Error("Should NOT receive scan_progress events")
	}
}

func TestShouldSend_AddressFilter(t *testing.T) {
	h := testHub()

	watched := "0x1111111111111111111111111111111111111111"
	client := &Client{sub: Subscription{
		Addresses: []string{watched},
	}}

	matching := &Event{
		Type: EventScanStarted,
		Data: map[string]interface{}{"address": watched},
	}
	matchingCased := &Event{
		Type: EventScanCompleted,
		Data: &scan.Result{Address: "0x1111111111111111111111111111111111111111"},
	}
	notMatching := &Event{
		Type: EventScanStarted,
		Data: map[string]interface{}{"address": "0x2222222222222222222222222222222222222222"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match the watched wallet")
	}
	if !h.shouldSend(client, matchingCased) {
		t.Error("Should match a scan result for the watched wallet")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated wallets")
	}
}

func TestShouldSend_MaxScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MaxScore: 50,
	}}

	risky := &Event{
		Type: EventScanCompleted,
		Data: &scan.Result{Score: 20},
	}
	safe := &Event{
		Type: EventScanCompleted,
		Data: &scan.Result{Score: 95},
	}
	progress := &Event{
		Type: EventScanProgress,
		Data: map[string]interface{}{"percentComplete": 50},
	}

	if !h.shouldSend(client, risky) {
		t.Error("Should receive low-score results")
	}
	if h.shouldSend(client, safe) {
		t.Error("Should NOT receive results above the ceiling")
	}
	if !h.shouldSend(client, progress) {
		t.Error("MaxScore filter should only apply to completed scans")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventScanCompleted}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Addresses: []string{"0x1111111111111111111111111111111111111111"},
	}}

	// Event with data the address filter can't inspect should not crash
	event := &Event{
		Type: EventProviderHealth,
		Data: "string data not a map",
	}

	// Address filter skips data it can't extract an address from
	if !h.shouldSend(client, event) {
		t.Error("Unextractable data should pass through the address filter")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventScanStarted, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.ScanCompleted(&scan.Result{
		RequestID: "scan_test",
		Address:   "0x1111111111111111111111111111111111111111",
		Score:     80,
		Grade:     "B",
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ScanLifecycleBroadcasts(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic
	h.ScanStarted("scan_1", "0xaaaa", "ethereum")
	h.ScanProgress(scan.ProgressEvent{ScanID: "scan_1", PercentComplete: 25})
	h.ProviderHealthChanged("reputation-api", "closed", "open")
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants provider health changes
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventProviderHealth}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a scan event (should be filtered out)
	h.Broadcast(&Event{Type: EventScanStarted, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive scan events")
	default:
		// Good - filtered out
	}

	// Send a health event (should be received)
	h.Broadcast(&Event{Type: EventProviderHealth, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive provider_health event")
	}
}
