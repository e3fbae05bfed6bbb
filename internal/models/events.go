// Package models defines the data structures shared across the service.
package models

// TurnCompleted is published after every processed dialogue turn.
type TurnCompleted struct {
	EventType     string `json:"eventType"`
	SessionID     string `json:"sessionId"`
	RestaurantID  string `json:"restaurantId"`
	TurnID        string `json:"turnId"`
	Timestamp     int64  `json:"timestamp"`
	Transcript    string `json:"transcript"`
	Intent        string `json:"intent"`
	Item          string `json:"item,omitempty"`
	Reply         string `json:"reply"`
	State         string `json:"state"`
	Degraded      bool   `json:"degraded"`
	AudioOffsetMs int64  `json:"audioOffsetMs"`
}

// OrderCreated is published once per persisted order.
type OrderCreated struct {
	EventType    string      `json:"eventType"`
	OrderID      string      `json:"orderId"`
	SessionID    string      `json:"sessionId"`
	RestaurantID string      `json:"restaurantId"`
	CustomerID   string      `json:"customerNumber"`
	Timestamp    int64       `json:"timestamp"`
	Items        []OrderItem `json:"items"`
	Total        float64     `json:"total"`
}
