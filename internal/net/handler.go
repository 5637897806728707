package net

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"deepspire/server/internal/sim"
	"deepspire/server/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler builds the HTTP mux: join over plain HTTP, play over
// WebSocket, plus health and diagnostics.
func Handler(hub *Hub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		runs, subs := hub.DiagnosticsSnapshot()
		payload := struct {
			Status      string                  `json:"status"`
			ServerTime  int64                   `json:"serverTime"`
			TickRate    int                     `json:"tickRate"`
			Heartbeat   int64                   `json:"heartbeatMillis"`
			Runs        []diagnosticsRun        `json:"runs"`
			Subscribers []diagnosticsSubscriber `json:"subscribers"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			TickRate:    sim.TickRate,
			Heartbeat:   heartbeatInterval.Milliseconds(),
			Runs:        runs,
			Subscribers: subs,
		}
		writeJSON(w, http.StatusOK, payload)
	})

	mux.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed join request"})
			return
		}
		resp, err := hub.Join(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("id")
		if playerID == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		snapshot := hub.SaveSnapshot(playerID)
		if snapshot == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no checkpoint"})
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	})

	mux.HandleFunc("/claim", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req claimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed claim request"})
			return
		}
		att, err := hub.ClaimReward(r.Context(), req.RunID, req.Wallet)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, att)
	})

	mux.HandleFunc("/rewards", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rewardPoolResponse{Balance: hub.RewardPool(r.Context())})
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("id")
		if playerID == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.publisher.Publish(context.Background(), logging.Event{
				Type:     "net.upgrade_failed",
				Severity: logging.SeverityWarn,
				Category: logging.CategorySystem,
				Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
				Payload:  map[string]any{"error": err.Error()},
			})
			return
		}

		sub, ok := hub.Subscribe(playerID, conn)
		if !ok {
			message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown player")
			conn.WriteMessage(websocket.CloseMessage, message)
			conn.Close()
			return
		}

		readLoop(hub, sub)
	})

	return mux
}

// readLoop pumps one connection until it drops or the client leaves.
// A normal close counts as an intentional departure; anything else
// leaves the player in the run for the reconnect window.
func readLoop(hub *Hub, sub *subscriber) {
	for {
		_, payload, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				hub.Leave(sub)
			} else {
				hub.Drop(sub)
			}
			return
		}
		hub.HandleMessage(sub, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
