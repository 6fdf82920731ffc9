// Package ws pushes live signing-progress events to owners watching a
// document. One subscription group per document ID.
package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Event is a progress update broadcast to every watcher of a document
type Event struct {
	Type       string `json:"type"` // invitation_viewed | invitation_signed | invitation_declined | document_completed | document_finalized
	DocumentID string `json:"documentId"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Detail     string `json:"detail,omitempty"`
}

// Hub maintains per-document watcher sets and fans events out to them
type Hub struct {
	watchers   map[string]map[*Client]bool // documentID -> clients
	register   chan *Client
	unregister chan *Client
	events     chan Event
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		watchers:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, 64),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.watchers[client.documentID]
			if !ok {
				set = make(map[*Client]bool)
				h.watchers[client.documentID] = set
			}
			set[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.watchers[client.documentID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.watchers, client.documentID)
					}
				}
			}
			h.mu.Unlock()

		case ev := <-h.events:
			msg, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ws: failed to marshal event: %v", err)
				continue
			}
			h.mu.RLock()
			for client := range h.watchers[ev.DocumentID] {
				select {
				case client.send <- msg:
				default:
					// slow consumer, drop the event rather than block the hub
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues an event for broadcast. Safe to call on a nil hub so
// services can run without a websocket layer in tests.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	select {
	case h.events <- ev:
	default:
		log.Printf("ws: event buffer full, dropping %s for %s", ev.Type, ev.DocumentID)
	}
}
