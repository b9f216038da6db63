// wstail tails the live log stream of a job from a running cloudlaunch
// server and prints the frames to stdout.
//
// Usage: go run ./cmd/wstail -addr localhost:8080 -job <job_id>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	jobID := flag.String("job", "", "job id to tail")
	flag.Parse()

	if *jobID == "" {
		fmt.Fprintln(os.Stderr, "usage: wstail -addr host:port -job <job_id>")
		os.Exit(2)
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/" + *jobID}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Fatalf("read: %v", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Fatalf("decode frame %q: %v", data, err)
		}

		switch f.Type {
		case "log":
			var line string
			json.Unmarshal(f.Data, &line)
			fmt.Println(line)
		case "status":
			var status string
			json.Unmarshal(f.Data, &status)
			fmt.Printf("-- status: %s\n", status)
		case "result":
			fmt.Printf("-- result: %s\n", f.Data)
		case "error":
			var msg string
			json.Unmarshal(f.Data, &msg)
			fmt.Printf("-- error: %s\n", msg)
		case "done":
			return
		case "ping":
			// Keepalive only.
		}
	}
}
