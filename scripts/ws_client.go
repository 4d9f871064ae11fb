// Package main runs a demo WebSocket client that follows the order and
// schedule events of one delivery date.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string          `json:"type"`
	Date string          `json:"date"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	date := time.Now().Format("2006-01-02")
	if len(os.Args) > 1 {
		date = os.Args[1]
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws", RawQuery: url.Values{"date": {date}}.Encode()}
	hdr := http.Header{}
	hdr.Set("X-User", "ws-demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt event
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s %s: %s", evt.Date, evt.Type, string(evt.Data))
		}
	}()

	// Trigger a scheduling run so programmed partitions show up
	time.Sleep(500 * time.Millisecond)
	body, _ := json.Marshal(map[string]any{"date": date, "available_drivers": []int{1, 2}})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/schedule", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	if resp, err := http.DefaultClient.Do(req); err != nil {
		log.Printf("schedule: %v", err)
	} else {
		log.Printf("schedule: %s", resp.Status)
		_ = resp.Body.Close()
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
