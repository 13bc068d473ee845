package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/gridlink/rover"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	eventBuffer = 64
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
)

// linkController is the part of the session the HTTP surface drives
type linkController interface {
	Connect(ctx context.Context, peer rover.Peer, serviceID string) error
	Disconnect()
	Status() rover.SessionStatus
}

// positionRequest is the body of POST /vehicle, POST /obstacles and
// PUT /obstacles/{id}
type positionRequest struct {
	X         int             `json:"x"`
	Y         int             `json:"y"`
	Heading   rover.Direction `json:"heading"`
	Direction rover.Direction `json:"direction"`
}

type connectRequest struct {
	Peer      string `json:"peer"`
	ServiceID string `json:"serviceId"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(ctl *rover.Controller, link linkController, bus *rover.EventBus, linkCfg rover.LinkConfig, logger zerolog.Logger) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	store := ctl.Store()
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("remote", r.RemoteAddr).Msg("/health request")
		_, placed := store.Vehicle()
		status := struct {
			Status    string             `json:"status"`
			Timestamp time.Time          `json:"timestamp"`
			Link      rover.SessionState `json:"link"`
			Vehicle   bool               `json:"vehicle"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Link:      link.Status().State,
			Vehicle:   placed,
		}
		writeJSON(w, logger, http.StatusOK, status)
	})

	// World snapshot plus link status
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		state := struct {
			rover.Snapshot
			Link rover.SessionStatus `json:"link"`
		}{
			Snapshot: store.Snapshot(),
			Link:     link.Status(),
		}
		writeJSON(w, logger, http.StatusOK, state)
	})

	// Raster grid snapshot
	mux.HandleFunc("GET /grid.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := rover.NewGridRenderer().WritePNG(w, store.Snapshot()); err != nil {
			logger.Error().Err(err).Msg("Error encoding grid PNG")
		}
	})

	// Vector grid snapshot
	mux.HandleFunc("GET /grid.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := rover.NewVectorRenderer().RenderToSVG(w, store.Snapshot()); err != nil {
			logger.Error().Err(err).Msg("Error rendering grid SVG")
		}
	})

	// GeoJSON export
	mux.HandleFunc("GET /grid.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(rover.SnapshotToGeoJSON(store.Snapshot())); err != nil {
			logger.Error().Err(err).Msg("Error encoding GeoJSON")
		}
	})

	// Layout file of the current arena, loadable with -layout
	mux.HandleFunc("GET /layout", func(w http.ResponseWriter, r *http.Request) {
		data, err := yaml.Marshal(rover.LayoutFromSnapshot(store.Snapshot()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
	})

	// Live event stream
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		streamEvents(r.Context(), conn, bus, logger)
	})

	// Drive the vehicle
	mux.HandleFunc("POST /maneuver/{code}", func(w http.ResponseWriter, r *http.Request) {
		m, err := rover.ParseManeuver(r.PathValue("code"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := ctl.Move(m)
		if errors.Is(err, rover.ErrNoVehicle) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, logger, http.StatusOK, res)
	})

	// Place the vehicle
	mux.HandleFunc("POST /vehicle", func(w http.ResponseWriter, r *http.Request) {
		var req positionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v, ok := ctl.PlaceVehicle(req.X, req.Y, req.Heading)
		if !ok {
			http.Error(w, "vehicle footprint is blocked or out of bounds", http.StatusConflict)
			return
		}
		writeJSON(w, logger, http.StatusOK, v)
	})

	// Send the vehicle pose to the peer
	mux.HandleFunc("POST /vehicle/send", func(w http.ResponseWriter, r *http.Request) {
		if err := ctl.SendPose(); err != nil {
			http.Error(w, err.Error(), sendStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Obstacle list
	mux.HandleFunc("GET /obstacles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, store.Obstacles())
	})

	// Add an obstacle under the next free id
	mux.HandleFunc("POST /obstacles", func(w http.ResponseWriter, r *http.Request) {
		var req positionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		o, ok := ctl.AddObstacle(req.X, req.Y, req.Direction)
		if !ok {
			http.Error(w, "cell is occupied or out of bounds", http.StatusConflict)
			return
		}
		writeJSON(w, logger, http.StatusCreated, o)
	})

	// Edit (upsert) an obstacle
	mux.HandleFunc("PUT /obstacles/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req positionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		o, res := ctl.EditObstacle(id, req.X, req.Y, req.Direction)
		if res == rover.UpsertRejected {
			http.Error(w, "obstacle rejected: destination occupied or out of bounds", http.StatusConflict)
			return
		}
		writeJSON(w, logger, http.StatusOK, struct {
			Obstacle rover.Obstacle `json:"obstacle"`
			Result   string         `json:"result"`
		}{o, res.String()})
	})

	// Remove an obstacle
	mux.HandleFunc("DELETE /obstacles/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if _, found := ctl.RemoveObstacle(id); !found {
			http.Error(w, "obstacle not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Remove every obstacle
	mux.HandleFunc("DELETE /obstacles", func(w http.ResponseWriter, r *http.Request) {
		ctl.ClearObstacles()
		w.WriteHeader(http.StatusNoContent)
	})

	// Send every obstacle to the peer
	mux.HandleFunc("POST /obstacles/send", func(w http.ResponseWriter, r *http.Request) {
		n, err := ctl.SendObstacles()
		if err != nil {
			http.Error(w, err.Error(), sendStatus(err))
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]int{"sent": n})
	})

	// Connect to a peer; the body is optional and defaults to link config
	mux.HandleFunc("POST /link/connect", func(w http.ResponseWriter, r *http.Request) {
		req := connectRequest{Peer: linkCfg.Peer, ServiceID: linkCfg.ServiceID}
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		if req.Peer == "" {
			http.Error(w, "peer is required", http.StatusBadRequest)
			return
		}

		err := link.Connect(r.Context(), rover.Peer{Address: req.Peer}, req.ServiceID)
		switch {
		case err == nil:
			writeJSON(w, logger, http.StatusOK, link.Status())
		case errors.Is(err, rover.ErrSuperseded):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Warn().Err(err).Str("peer", req.Peer).Msg("Connect failed")
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	})

	// Manual disconnect; suppresses reconnect
	mux.HandleFunc("POST /link/disconnect", func(w http.ResponseWriter, r *http.Request) {
		link.Disconnect()
		w.WriteHeader(http.StatusNoContent)
	})

	// Link status
	mux.HandleFunc("GET /link", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, link.Status())
	})

	return mux
}

// streamEvents forwards bus events to a websocket client until the client
// goes away or ctx ends
func streamEvents(ctx context.Context, conn *websocket.Conn, bus *rover.EventBus, logger zerolog.Logger) {
	events, cancel := bus.Subscribe(eventBuffer)
	defer cancel()
	defer conn.Close()

	// The read side only watches for the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				logger.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Error encoding response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid obstacle id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// sendStatus maps an outbound send error to an HTTP status
func sendStatus(err error) int {
	switch {
	case errors.Is(err, rover.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, rover.ErrNoVehicle):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}
