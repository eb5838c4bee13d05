package main

import "encoding/json"

// streamEvent is a message on the terminal websocket
type streamEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
