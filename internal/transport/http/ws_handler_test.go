package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketSubmitAndFeed(t *testing.T) {
	s := newTestStack(t)
	createPublished(t, s)

	u := "ws" + s.server.URL[len("http"):] + "/ws/results?studentId=s1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if typ, _ := readNext(conn, t, "subscribed"); typ != "subscribed" {
		t.Fatalf("expected subscribed, got %s", typ)
	}

	msg := map[string]any{"type": "submit", "payload": submission(1, 1)}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write submit: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 3 && !(seen["submitted"] && seen["result"] && seen["certificate"]); i++ {
		typ, _ := readNext(conn, t, "")
		seen[typ] = true
	}
	if !seen["submitted"] || !seen["result"] || !seen["certificate"] {
		t.Fatalf("expected submitted, result and certificate messages, got %v", seen)
	}
}

func TestWebSocketFilterSkipsOtherStudents(t *testing.T) {
	s := newTestStack(t)
	createPublished(t, s)

	u := "ws" + s.server.URL[len("http"):] + "/ws/results?studentId=someone-else"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "subscribed")

	if code := s.do(t, http.MethodPost, "/submissions", submission(1, 0), nil); code != http.StatusCreated {
		t.Fatalf("submit: status %d", code)
	}
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var got map[string]any
	if err := conn.ReadJSON(&got); err == nil {
		t.Fatalf("expected no events for another student, got %v", got)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
