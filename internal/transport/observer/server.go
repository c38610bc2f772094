// Package observer serves the read-only observer API: a JSON bootstrap
// endpoint and a WS stream of per-cycle stats.
package observer

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voxelgrid.dev/internal/engine"
	"voxelgrid.dev/internal/observerproto"
)

// Engine is the subset of the engine the observer needs.
type Engine interface {
	Params() engine.Params
	Cycles() uint64
	Subscribe() (int, <-chan engine.CycleStats)
	Unsubscribe(id int)
}

type Server struct {
	eng Engine
	log zerolog.Logger

	blockPalette  []string
	paletteDigest string

	upgrader websocket.Upgrader
}

func NewServer(eng Engine, blockPalette []string, paletteDigest string, logger zerolog.Logger) *Server {
	return &Server{
		eng:           eng,
		log:           logger,
		blockPalette:  blockPalette,
		paletteDigest: paletteDigest,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Cycle:           s.eng.Cycles(),
			Params:          s.eng.Params(),
			BlockPalette:    s.blockPalette,
			PaletteDigest:   s.paletteDigest,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		id, stats := s.eng.Subscribe()
		defer s.eng.Unsubscribe(id)
		s.log.Info().Int("observer", id).Str("remote", r.RemoteAddr).Msg("observer connected")

		// Reader goroutine: detects close, tolerates SUBSCRIBE keepalives.
		readErr := make(chan error, 1)
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					readErr <- err
					return
				}
			}
		}()

		for {
			select {
			case err := <-readErr:
				s.log.Info().Int("observer", id).Err(err).Msg("observer disconnected")
				return
			case st, ok := <-stats:
				if !ok {
					return
				}
				out := observerproto.CycleMsg{
					Type:            "CYCLE",
					ProtocolVersion: observerproto.Version,
					Stats:           st,
				}
				b, err := json.Marshal(out)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
