// Command tofcam-stat polls a running tofcamd's debug state endpoint and
// prints a one-line summary, for use in shell scripts or a terminal
// watch loop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "tofcamd debug HTTP base address")
	watch := flag.Duration("watch", 0, "repeat at this interval instead of printing once (e.g. 1s)")
	flag.Parse()

	if *watch <= 0 {
		if err := printOnce(*addr); err != nil {
			log.Fatalf("tofcam-stat: %v", err)
		}
		return
	}

	for {
		if err := printOnce(*addr); err != nil {
			log.Printf("tofcam-stat: %v", err)
		}
		time.Sleep(*watch)
	}
}

type stateView struct {
	State        string `json:"state"`
	Step         int    `json:"step"`
	PendingStep  int    `json:"pending_step"`
	FrameCounter int    `json:"frame_counter"`
	SessionID    string `json:"session_id"`
	Healthy      bool   `json:"healthy"`
}

func printOnce(addr string) error {
	resp, err := http.Get(addr + "/debug/tofcam/state")
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch state: unexpected status %s", resp.Status)
	}

	var view stateView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	fmt.Printf("state=%s step=%d pending=%d frames=%d session=%s healthy=%t\n",
		view.State, view.Step, view.PendingStep, view.FrameCounter, view.SessionID, view.Healthy)
	return nil
}
