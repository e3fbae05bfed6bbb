// Order Board - live view of calls and orders
// Consumes dialogue turn and order events from Kafka and pushes them to
// browsers over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

// BoardEvent is the subset of turn and order events the board shows.
type BoardEvent struct {
	EventType    string      `json:"eventType"`
	SessionID    string      `json:"sessionId"`
	RestaurantID string      `json:"restaurantId"`
	Timestamp    int64       `json:"timestamp"`
	Transcript   string      `json:"transcript,omitempty"`
	Intent       string      `json:"intent,omitempty"`
	Reply        string      `json:"reply,omitempty"`
	State        string      `json:"state,omitempty"`
	OrderID      string      `json:"orderId,omitempty"`
	Items        []OrderLine `json:"items,omitempty"`
	Total        float64     `json:"total,omitempty"`
}

// OrderLine is one ordered item.
type OrderLine struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// decodeEvent parses a Kafka message, keeping only events for restaurant
// when it is set.
func decodeEvent(value []byte, restaurant string) (BoardEvent, bool) {
	var event BoardEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("JSON unmarshal error: %v", err)
		return BoardEvent{}, false
	}
	if event.EventType == "" || event.SessionID == "" {
		return BoardEvent{}, false
	}
	if restaurant != "" && event.RestaurantID != restaurant {
		return BoardEvent{}, false
	}
	return event, true
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan BoardEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan BoardEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client connected. Total: %d", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client disconnected. Total: %d", n)

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func wsHandler(hub *Hub, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		hub.register <- conn

		// The board never sends; reading detects disconnects.
		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, group, topic, restaurant string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	defer reader.Close()

	log.Printf("Consuming from Kafka topic: %s (group %s)", topic, group)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		event, ok := decodeEvent(msg.Value, restaurant)
		if !ok {
			continue
		}
		log.Printf("Received %s for session %s", event.EventType, event.SessionID)
		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

const page = `<!doctype html>
<html><head><meta charset="utf-8"><title>Order Board</title>
<style>body{font-family:sans-serif;margin:2em}li{margin:.3em 0}.order{font-weight:bold}</style>
</head><body><h1>Order Board</h1><ul id="events"></ul>
<script>
const list = document.getElementById("events");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (m) => {
  const e = JSON.parse(m.data);
  const li = document.createElement("li");
  if (e.orderId) {
    li.className = "order";
    li.textContent = "Order " + e.orderId + ": " + e.items.map(i => i.quantity + " x " + i.name).join(", ") + " ($" + e.total.toFixed(2) + ")";
  } else {
    li.textContent = "[" + e.sessionId + "] " + e.state + " caller: " + (e.transcript || "...") + " / assistant: " + e.reply;
  }
  list.prepend(li);
};
</script></body></html>`

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	group := flag.String("group", "order-board", "Kafka consumer group")
	topicTurns := flag.String("topic-turns", "dialogue.turn.completed", "Turn event topic")
	topicOrders := flag.String("topic-orders", "order.created", "Order event topic")
	restaurant := flag.String("restaurant", "", "Only show events for this restaurant ID")
	origin := flag.String("origin", "", "Allowed WebSocket origin, empty allows any")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	brokerList := strings.Split(*brokers, ",")
	go consumeKafka(ctx, hub, brokerList, *group, *topicTurns, *restaurant)
	go consumeKafka(ctx, hub, brokerList, *group, *topicOrders, *restaurant)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return *origin == "" || r.Header.Get("Origin") == *origin
		},
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	http.HandleFunc("/ws", wsHandler(hub, upgrader))

	log.Printf("Order Board starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s", *topicTurns, *topicOrders)

	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
