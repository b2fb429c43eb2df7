// Package main starts an asynchronous demo run and follows its progress over
// the run WebSocket.
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

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Start a run large enough to watch.
	body := []byte(`{"jobs":200,"workers":20,"maxIterations":200000,"async":true}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/demo", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("start run: %s", resp.Status)
	}
	var started struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", started.RunID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + started.RunID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("read: %v", err)
				}
				return
			}
			switch m.Type {
			case "run.checkpoint":
				log.Printf("epoch %v  iteration %v  utility %.2f", m.Data["epoch"], m.Data["iteration"], m.Data["utility"])
			default:
				log.Printf("WS <- %s: %v", m.Type, m.Data)
			}
		}
	}()

	select {
	case <-time.After(2 * time.Minute):
		log.Print("timed out waiting for the run to finish")
	case <-done:
	}
}
