// Package realtime pushes events to connected users over websockets.
//
// Each authenticated connection joins the room "user_<id>". Delivery is best
// effort: a push to a user with no live connection is dropped, and a peer
// whose write fails is evicted.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/websocket"
)

// Authenticator resolves an access token to a user ID
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (userID string, err error)
}

// Frame is the envelope written to clients
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type userIDContextKey struct{}

// RoomName returns the room a user's connections join
func RoomName(userID string) string {
	return "user_" + userID
}

type peer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{conn: conn, encoder: json.NewEncoder(conn)}
}

func (p *peer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Hub tracks the peers of every room
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*peer]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*peer]struct{})}
}

func (h *Hub) join(room string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.rooms[room]
	if !ok {
		peers = make(map[*peer]struct{})
		h.rooms[room] = peers
	}
	peers[p] = struct{}{}
}

func (h *Hub) leave(room string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(peers, p)
	if len(peers) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) peers(room string) []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*peer, 0, len(h.rooms[room]))
	for p := range h.rooms[room] {
		out = append(out, p)
	}
	return out
}

// Connections reports how many live connections a user has
func (h *Hub) Connections(userID string) int {
	return len(h.peers(RoomName(userID)))
}

// Push writes an event to every connection of the user
func (h *Hub) Push(userID, event string, data interface{}) {
	room := RoomName(userID)
	frame := Frame{Event: event, Data: data}

	for _, p := range h.peers(room) {
		if err := p.writeFrame(frame); err != nil {
			log.Printf("WARN: realtime: dropping peer in %s: %v", room, err)
			h.leave(room, p)
			_ = p.conn.Close()
		}
	}
}

// Handler serves the websocket endpoint. The token comes from the "token"
// query parameter or a Bearer Authorization header.
func (h *Hub) Handler(auth Authenticator) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		h.serveConn(conn)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		token := accessTokenFromRequest(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		userID, err := auth.AuthenticateToken(r.Context(), token)
		if err != nil || userID == "" {
			log.Printf("WARN: realtime: websocket unauthorized remote=%s err=%v", r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	userID, _ := conn.Request().Context().Value(userIDContextKey{}).(string)
	if userID == "" {
		return
	}

	room := RoomName(userID)
	p := newPeer(conn)
	h.join(room, p)
	defer h.leave(room, p)

	if err := p.writeFrame(Frame{Event: "connected", Data: map[string]string{"room": room}}); err != nil {
		return
	}

	// Clients only listen; inbound frames are read to detect disconnects
	decoder := json.NewDecoder(conn)
	for {
		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("INFO: realtime: connection in %s closed: %v", room, err)
			}
			return
		}
	}
}
