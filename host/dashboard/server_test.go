package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nightfall/core"
	"nightfall/protocol"
)

func newTestNode() *core.ControlLoop {
	return core.NewControlLoop(core.DefaultLoopConfig(core.RoleMaster), core.Hardware{})
}

func TestStatusEndpoints(t *testing.T) {
	node := newTestNode()
	node.Step(0)
	srv := httptest.NewServer(NewServer(node).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Bad status JSON: %v", err)
	}
	resp.Body.Close()
	if st.Status != "online" || st.Role != "master" || st.Emergency {
		t.Errorf("Unexpected status %+v", st)
	}
	if len(st.Peers) != 2 {
		t.Errorf("Expected front and camera peers, got %+v", st.Peers)
	}

	resp, err = http.Get(srv.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices failed: %v", err)
	}
	var dev Devices
	json.NewDecoder(resp.Body).Decode(&dev)
	resp.Body.Close()
	if !dev.Devices[protocol.SourceRear] || dev.Devices[protocol.SourceFront] {
		t.Errorf("Unexpected devices %+v", dev.Devices)
	}

	resp, err = http.Get(srv.URL + "/api/telemetry")
	if err != nil {
		t.Fatalf("GET /api/telemetry failed: %v", err)
	}
	var tel protocol.Telemetry
	json.NewDecoder(resp.Body).Decode(&tel)
	resp.Body.Close()
	if tel.Type != protocol.TypeTelemetry || tel.RobotState != protocol.StateReady {
		t.Errorf("Unexpected telemetry %+v", tel)
	}
}

func TestCommandsEndpoint(t *testing.T) {
	node := newTestNode()
	srv := httptest.NewServer(NewServer(node).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/commands")
	if err != nil {
		t.Fatalf("GET /api/commands failed: %v", err)
	}
	var list CommandList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Bad commands JSON: %v", err)
	}
	resp.Body.Close()

	if len(list.Commands) != node.Registry().Count() {
		t.Fatalf("Expected %d commands, got %d", node.Registry().Count(), len(list.Commands))
	}
	if list.Commands[0].Name != protocol.CommandForward || list.Commands[0].Format != "L=150 R=150 CL=150 CR=150" {
		t.Errorf("Unexpected first command %+v", list.Commands[0])
	}
	latched := map[string]bool{}
	for i, c := range list.Commands {
		if int(c.ID) != i {
			t.Errorf("Expected id %d for %s, got %d", i, c.Name, c.ID)
		}
		latched[c.Name] = c.AllowLatched
	}
	if !latched[protocol.CommandEmergencyReset] || latched[protocol.CommandForward] {
		t.Errorf("Unexpected latched flags %v", latched)
	}
	if !strings.Contains(list.Dictionary, "emergency_reset\n") {
		t.Errorf("Dictionary missing emergency_reset: %q", list.Dictionary)
	}
}

func TestMotorEndpoint(t *testing.T) {
	node := newTestNode()
	srv := httptest.NewServer(NewServer(node).Handler())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/api/motor", url.Values{"command": {"forward"}})
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	node.Step(0)
	if s := node.Snapshot(); s.Movement != core.MoveForward || s.Targets[protocol.FrontLeft] != 150 {
		t.Errorf("Command not applied: %s %v", s.Movement, s.Targets)
	}

	resp, _ = http.PostForm(srv.URL+"/api/motor", url.Values{"command": {"fly"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown command, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/api/motor")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestWebSocketControlAndBroadcast(t *testing.T) {
	node := newTestNode()
	dash := NewServer(node)
	node.SetSink(dash)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dash.Run(ctx)

	srv := httptest.NewServer(dash.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var greeting Status
	if err := conn.ReadJSON(&greeting); err != nil || greeting.Type != protocol.TypeStatus {
		t.Fatalf("Expected status greeting, got %+v (%v)", greeting, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"emergency"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for node.Mailbox().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Command never reached the mailbox")
		}
		time.Sleep(time.Millisecond)
	}

	node.Step(0)
	if !node.Snapshot().Latched() {
		t.Fatal("Expected emergency from the WebSocket command")
	}

	var tel protocol.Telemetry
	if err := conn.ReadJSON(&tel); err != nil {
		t.Fatalf("Expected telemetry broadcast: %v", err)
	}
	if !tel.Emergency || tel.EmergencyCause != "manual" {
		t.Errorf("Broadcast should show the emergency, got %+v", tel)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	dash := NewServer(newTestNode())
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue*4; i++ {
			dash.PublishTelemetry(protocol.Telemetry{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishTelemetry blocked without a hub running")
	}
	if dash.Dropped() != broadcastQueue*3 {
		t.Errorf("Expected %d dropped frames, got %d", broadcastQueue*3, dash.Dropped())
	}
}
