package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rvirk/etherwave/internal/catalog"
	"github.com/rvirk/etherwave/internal/config"
	"github.com/rvirk/etherwave/internal/graph"
	"github.com/rvirk/etherwave/internal/player"
	"github.com/rvirk/etherwave/internal/proxy"
	"github.com/rvirk/etherwave/internal/stream"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("etherwave starting up...")

	// Broadcaster: the singular output sink, fanned out to all listeners
	broadcaster := stream.NewBroadcaster()

	graphMgr := graph.NewManager(broadcaster, cfg.FFTSize, cfg.InitialVolume, cfg.FadeInDuration)
	orch := player.NewOrchestrator(&cfg, proxy.NewClient(cfg.ProxyURL), graphMgr)
	go orch.Run(ctx)

	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	// HTTP routes
	mux := http.NewServeMux()

	// Audio streams
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster))
	mux.Handle("/offer", webrtcHandler)

	// API endpoints
	mux.HandleFunc("/api/stations", func(w http.ResponseWriter, r *http.Request) {
		type entry struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Genre string `json:"genre"`
		}
		var stations []entry
		for _, id := range catalog.IDs() {
			st, _ := catalog.Lookup(id)
			stations = append(stations, entry{ID: st.ID, Title: st.Title, Genre: st.Genre})
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{"stations": stations})
	})

	mux.HandleFunc("/api/select", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			SourceID string `json:"source_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceID == "" {
			http.Error(w, "invalid source_id", http.StatusBadRequest)
			return
		}
		if err := orch.Select(req.SourceID); err != nil {
			if errors.Is(err, player.ErrUnknownSource) {
				http.Error(w, "unknown source", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "source_id": req.SourceID})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		// the POST itself is the user action; the gesture is minted here
		// and nowhere else
		if err := orch.RequestPlay(player.UserGesture()); err != nil {
			switch {
			case errors.Is(err, player.ErrNoSession):
				http.Error(w, "no source selected", http.StatusConflict)
			case errors.Is(err, player.ErrAutoplayRejected):
				http.Error(w, "play requires a user action", http.StatusForbidden)
			default:
				http.Error(w, err.Error(), http.StatusBadGateway)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/deactivate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := orch.Deactivate(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/volume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Level float64 `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		orch.SetVolume(req.Level)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "level": orch.Status().Volume})
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st := orch.Status()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"state":              st.State.String(),
			"source_id":          st.SourceID,
			"station":            st.Station.Title,
			"genre":              st.Station.Genre,
			"reconnect_attempts": st.ReconnectAttempts,
			"last_error":         st.LastError,
			"volume":             st.Volume,
			"generation":         st.Generation.String(),
			"http_listeners":     broadcaster.ListenerCount(),
			"webrtc_listeners":   webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/spectrum", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		spectrum := orch.Spectrum()
		bins := make([]int, len(spectrum))
		for i, v := range spectrum {
			bins[i] = int(v)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"playing": orch.State() == player.StatePlaying,
			"bins":    bins,
		})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("etherwave live on %s (proxy %s)", addr, cfg.ProxyURL)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
