package net

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"deepspire/server/internal/attest"
	"deepspire/server/internal/dungeon"
	"deepspire/server/internal/save"
	"deepspire/server/internal/sim"
	"deepspire/server/logging"
)

func testHub() (*Hub, *sim.Registry) {
	return testHubGrace(time.Minute, nil)
}

func testHubGrace(grace time.Duration, rewards attest.Service) (*Hub, *sim.Registry) {
	registry := sim.NewRegistry(dungeon.NewGenerator(logging.NopPublisher()), logging.NopPublisher(), grace)
	return NewHub(registry, attest.NewSafeService(rewards), logging.NopPublisher()), registry
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// fakeRewards is an in-memory attestation backend for tests.
type fakeRewards struct {
	balance int64
	claims  map[string]bool
}

func newFakeRewards(balance int64) *fakeRewards {
	return &fakeRewards{balance: balance, claims: make(map[string]bool)}
}

func (f *fakeRewards) PoolBalance(ctx context.Context) (int64, error) {
	return f.balance, nil
}

func (f *fakeRewards) GenerateAttestation(ctx context.Context, runID, wallet string, amount int64) (*attest.Attestation, error) {
	return &attest.Attestation{RunID: runID, Wallet: wallet, Amount: amount, IssuedAt: time.Now(), Signature: "sig-" + runID}, nil
}

func (f *fakeRewards) HasClaimed(ctx context.Context, runID, wallet string) (bool, error) {
	return f.claims[runID+"|"+wallet], nil
}

func (f *fakeRewards) MarkClaimed(ctx context.Context, runID, wallet string) error {
	f.claims[runID+"|"+wallet] = true
	return nil
}

func TestJoinCreatesRun(t *testing.T) {
	hub, registry := testHub()

	resp, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.RunID == "" || resp.PlayerID == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if resp.TickRate != sim.TickRate {
		t.Fatalf("tick rate = %d, want %d", resp.TickRate, sim.TickRate)
	}
	if registry.Get(resp.RunID) == nil {
		t.Fatal("run not registered")
	}
	registry.End(resp.RunID)
}

func TestJoinExistingRun(t *testing.T) {
	hub, registry := testHub()

	first, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer registry.End(first.RunID)

	second, err := hub.Join(joinRequest{RunID: first.RunID, Name: "Moira", ClassID: "mage"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if second.RunID != first.RunID {
		t.Fatalf("joined run %q, want %q", second.RunID, first.RunID)
	}
	if second.PlayerID == first.PlayerID {
		t.Fatal("player ids collide")
	}
}

func TestJoinRejections(t *testing.T) {
	hub, _ := testHub()

	if _, err := hub.Join(joinRequest{Name: "X", ClassID: "necromancer"}); err == nil {
		t.Fatal("unknown class accepted")
	}
	if _, err := hub.Join(joinRequest{RunID: "no-such-run", Name: "X", ClassID: "warrior"}); err == nil {
		t.Fatal("unknown run accepted")
	}
	badSave := &save.SaveData{Name: "", ClassID: "warrior", Level: 0, Floor: 0}
	if _, err := hub.Join(joinRequest{Save: badSave}); err == nil {
		t.Fatal("invalid save accepted")
	}
}

func TestJoinFromSave(t *testing.T) {
	hub, registry := testHub()

	s := &save.SaveData{Name: "Brannoc", ClassID: "warrior", Level: 9, Gold: 400, Floor: 3}
	resp, err := hub.Join(joinRequest{Save: s})
	if err != nil {
		t.Fatalf("join from save failed: %v", err)
	}
	registry.End(resp.RunID)
}

func TestClientMessageCommands(t *testing.T) {
	tests := []struct {
		msg  clientMessage
		want sim.CommandType
	}{
		{clientMessage{Type: msgInput, DX: 1, DY: 0}, sim.CommandMove},
		{clientMessage{Type: msgCast, AbilityID: "cleave"}, sim.CommandCast},
		{clientMessage{Type: msgTarget, TargetID: "e1"}, sim.CommandSelectTarget},
		{clientMessage{Type: msgLoot, LootID: "loot-1"}, sim.CommandCollectLoot},
		{clientMessage{Type: msgEquip, ItemID: "it1"}, sim.CommandEquip},
		{clientMessage{Type: msgUnequip, Slot: "weapon"}, sim.CommandUnequip},
		{clientMessage{Type: msgOpenChest, ChestID: "chest-1"}, sim.CommandOpenChest},
		{clientMessage{Type: msgBuy, VendorID: "v1", OfferID: "o1"}, sim.CommandBuyVendor},
		{clientMessage{Type: msgAdvanceFloor}, sim.CommandAdvanceFloor},
	}
	for _, tc := range tests {
		cmd := tc.msg.command("p1")
		if cmd == nil || cmd.Type != tc.want {
			t.Fatalf("message %q mapped to %+v, want %q", tc.msg.Type, cmd, tc.want)
		}
		if cmd.PlayerID != "p1" {
			t.Fatalf("command for %q lost player id", tc.msg.Type)
		}
	}

	if cmd := (&clientMessage{Type: "nonsense"}).command("p1"); cmd != nil {
		t.Fatalf("unknown type mapped to %+v", cmd)
	}
	if cmd := (&clientMessage{Type: msgPing}).command("p1"); cmd != nil {
		t.Fatal("ping mapped to a command")
	}
}

func TestRouteEvents(t *testing.T) {
	events := []sim.Event{
		{Type: sim.EventRoomCleared},
		{Type: sim.EventActionRejected, PlayerID: "p1"},
		{Type: sim.EventLootCollected, PlayerID: "p2"},
	}

	p1 := routeEvents(events, "p1")
	if len(p1) != 2 {
		t.Fatalf("p1 events = %+v", p1)
	}
	p2 := routeEvents(events, "p2")
	if len(p2) != 2 {
		t.Fatalf("p2 events = %+v", p2)
	}
	for _, ev := range p1 {
		if ev.PlayerID == "p2" {
			t.Fatal("p2's event leaked to p1")
		}
	}
}

func TestWebSocketSessionReceivesSnapshot(t *testing.T) {
	hub, registry := testHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	body, _ := json.Marshal(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	resp, err := http.Post(server.URL+"/join", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("join request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	var join joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&join); err != nil {
		t.Fatalf("decoding join response: %v", err)
	}
	defer registry.End(join.RunID)

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/ws?id=" + join.PlayerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var envelope stateEnvelope
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading state: %v", err)
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			t.Fatalf("decoding state: %v", err)
		}
		if envelope.Type == msgStateUpdate {
			break
		}
	}
	if envelope.State == nil || len(envelope.State.Rooms) == 0 {
		t.Fatalf("first snapshot missing rooms: %+v", envelope.State)
	}
	if len(envelope.State.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(envelope.State.Players))
	}
}

func TestWebSocketRejectsUnknownPlayer(t *testing.T) {
	hub, _ := testHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/ws?id=ghost"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return // refused outright is also acceptable
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("unknown player kept a live connection")
	}
}

func TestReconnectWithinGraceKeepsRun(t *testing.T) {
	hub, registry := testHubGrace(300*time.Millisecond, nil)
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	join, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	defer registry.End(join.RunID)

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/ws?id=" + join.PlayerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	// Drop the transport abruptly, no close handshake: the player
	// should stay in the run for the grace window.
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("reconnected socket got no state: %v", err)
	}

	time.Sleep(2 * 300 * time.Millisecond)
	if registry.Get(join.RunID) == nil {
		t.Fatal("run torn down although the player reconnected within grace")
	}
}

func TestAbandonedRunExpiresAfterGrace(t *testing.T) {
	hub, registry := testHubGrace(100*time.Millisecond, nil)
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	join, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/ws?id=" + join.PlayerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.Close()

	if !waitFor(t, 2*time.Second, func() bool { return registry.Get(join.RunID) == nil }) {
		t.Fatal("abandoned run survived the grace period")
	}
}

func TestClaimRewardOncePerWallet(t *testing.T) {
	backend := newFakeRewards(5000)
	hub, registry := testHubGrace(time.Minute, backend)
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	join, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	defer registry.End(join.RunID)

	wallet := "0x" + strings.Repeat("ab", 20)
	claim := func(runID, wallet string) *http.Response {
		body, _ := json.Marshal(claimRequest{RunID: runID, Wallet: wallet})
		resp, err := http.Post(server.URL+"/claim", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("claim request failed: %v", err)
		}
		return resp
	}

	resp := claim(join.RunID, wallet)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}
	var att attest.Attestation
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		t.Fatalf("decoding attestation: %v", err)
	}
	if att.Wallet != wallet || att.Amount != rewardPerFloor || att.Signature == "" {
		t.Fatalf("attestation = %+v", att)
	}

	second := claim(join.RunID, wallet)
	defer second.Body.Close()
	if second.StatusCode != http.StatusBadRequest {
		t.Fatalf("double claim status = %d", second.StatusCode)
	}

	bogus := claim(join.RunID, "not-a-wallet")
	defer bogus.Body.Close()
	if bogus.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed wallet status = %d", bogus.StatusCode)
	}

	ghost := claim("no-such-run", wallet)
	defer ghost.Body.Close()
	if ghost.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown run status = %d", ghost.StatusCode)
	}
}

func TestRewardPoolEndpoint(t *testing.T) {
	hub, _ := testHubGrace(time.Minute, newFakeRewards(777))
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	resp, err := http.Get(server.URL + "/rewards")
	if err != nil {
		t.Fatalf("rewards request failed: %v", err)
	}
	defer resp.Body.Close()
	var pool rewardPoolResponse
	if err := json.NewDecoder(resp.Body).Decode(&pool); err != nil {
		t.Fatalf("decoding pool: %v", err)
	}
	if pool.Balance != 777 {
		t.Fatalf("balance = %d, want 777", pool.Balance)
	}
}

func TestSaveCheckpointEndpoint(t *testing.T) {
	hub, registry := testHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	wallet := "0x" + strings.Repeat("cd", 20)
	join, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior", Wallet: wallet})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	defer registry.End(join.RunID)

	// Checkpoints refresh once the run ticks.
	var snapshot save.SaveData
	ok := waitFor(t, 3*time.Second, func() bool {
		resp, err := http.Get(server.URL + "/save?id=" + join.PlayerID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&snapshot) == nil
	})
	if !ok {
		t.Fatal("no checkpoint appeared")
	}
	if snapshot.Name != "Brannoc" || snapshot.ClassID != "warrior" {
		t.Fatalf("checkpoint = %+v", snapshot)
	}
	if snapshot.Floor != 1 || snapshot.Wallet != wallet {
		t.Fatalf("checkpoint floor/wallet = %d/%q", snapshot.Floor, snapshot.Wallet)
	}
	if err := snapshot.Validate(); err != nil {
		t.Fatalf("checkpoint does not round-trip: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	hub, _ := testHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	hub, registry := testHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	join, err := hub.Join(joinRequest{Name: "Brannoc", ClassID: "warrior"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	defer registry.End(join.RunID)

	resp, err := http.Get(server.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("diagnostics request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status string           `json:"status"`
		Runs   []diagnosticsRun `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding diagnostics: %v", err)
	}
	if payload.Status != "ok" || len(payload.Runs) != 1 {
		t.Fatalf("diagnostics = %+v", payload)
	}
}
