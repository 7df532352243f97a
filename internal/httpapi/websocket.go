package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"dataexplorer/internal/eventbus"

	"github.com/gorilla/websocket"
)

// hub fans cache-state events out to every connected UI client. Adapted from
// the reference backend's register/unregister/broadcast Hub, with the
// blockchain-specific broadcast helpers replaced by a single generic
// BroadcastMessage carrying the fetch/redraw events this cache emits.
type hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mutex      sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

var defaultHub = &hub{
	broadcast:  make(chan []byte),
	register:   make(chan *wsClient),
	unregister: make(chan *wsClient),
	clients:    make(map[*wsClient]bool),
}

func (h *hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[httpapi] websocket upgrade error:", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	defaultHub.register <- client

	go func() {
		defer func() {
			defaultHub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// BroadcastMessage is the envelope pushed to every connected UI client.
type BroadcastMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// subscribeBus forwards every fetch_complete/redraw_needed event published on
// bus to every connected UI client. This is the only consumer of those event
// types: the engine publishes, this is where the WS hub subscribes.
func subscribeBus(bus *eventbus.Bus) {
	ch := make(chan eventbus.Event, 32)
	bus.Subscribe("fetch_complete", ch)
	bus.Subscribe("redraw_needed", ch)

	go func() {
		for evt := range ch {
			msg := BroadcastMessage{Type: evt.Type, Payload: evt.Data}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[httpapi] marshal broadcast event %s: %v", evt.Type, err)
				continue
			}
			defaultHub.broadcast <- data
		}
	}()
}

func init() {
	go defaultHub.run()
}
