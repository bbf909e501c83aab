package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/domain"
)

// WSHandler streams result and certificate events and accepts submissions over the
// same connection.
type WSHandler struct {
	feed        *app.ResultFeed
	submissions *app.SubmissionService
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(feed *app.ResultFeed, submissions *app.SubmissionService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		feed:        feed,
		submissions: submissions,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type subscribedPayload struct {
	TemplateID string `json:"templateId,omitempty"`
	StudentID  string `json:"studentId,omitempty"`
}

// feedFilter limits a connection to events for one exam and/or student.
type feedFilter struct {
	templateID string
	studentID  string
}

func (f feedFilter) match(ev app.Event) bool {
	var templateID, studentID string
	switch {
	case ev.Result != nil:
		templateID, studentID = ev.Result.TemplateID, ev.Result.Student.ID
	case ev.Certificate != nil:
		templateID, studentID = ev.Certificate.ExamID, ev.Certificate.StudentID
	}
	if f.templateID != "" && f.templateID != templateID {
		return false
	}
	if f.studentID != "" && f.studentID != studentID {
		return false
	}
	return true
}

// ServeWS upgrades the request and relays feed events until the client disconnects.
// Optional query parameters templateId and studentId narrow the stream.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		http.Error(w, "feed not configured", http.StatusServiceUnavailable)
		return
	}
	filter := feedFilter{
		templateID: r.URL.Query().Get("templateId"),
		studentID:  r.URL.Query().Get("studentId"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if !filter.match(ev) {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "subscribed", Payload: subscribedPayload{
		TemplateID: filter.templateID,
		StudentID:  filter.studentID,
	}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			var sub domain.Submission
			if err := json.Unmarshal(inbound.Payload, &sub); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submission payload"}}
				continue
			}
			rec, err := h.submissions.Submit(r.Context(), sub)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			if rec.ShowResults {
				send <- outboundMessage[any]{Type: "submitted", Payload: rec.Result}
			} else {
				send <- outboundMessage[any]{Type: "submitted", Payload: submissionAck{
					ID:            rec.Result.ID,
					AttemptNumber: rec.Result.AttemptNumber,
					CompletedAt:   rec.Result.CompletedAt,
				}}
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
