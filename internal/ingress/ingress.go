// Package ingress injects externally triggered messages into the broadcast
// path without going through a client connection.
//
// The acknowledgment is fire-and-forget: once the broadcast has been
// dispatched the caller gets a success response, whether the message
// reached every connection, some of them, or none.
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keycast/keycast/internal/broadcast"
)

const maxBodyBytes = 64 << 10

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Ack is the response body of a trigger request. Key mirrors Content for
// clients of the older /send-key endpoint.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	Key     string `json:"key,omitempty"`
}

type Ingress struct {
	pub    broadcast.Publisher
	tracer trace.Tracer
}

func New(pub broadcast.Publisher) *Ingress {
	return &Ingress{
		pub:    pub,
		tracer: otel.Tracer("github.com/keycast/keycast/internal/ingress"),
	}
}

// Trigger broadcasts payload unchanged and acknowledges the dispatch.
func (i *Ingress) Trigger(ctx context.Context, payload string) Ack {
	ctx, span := i.tracer.Start(ctx, "keycast.ingress.trigger",
		trace.WithAttributes(attribute.Int("keycast.payload_bytes", len(payload))))
	defer span.End()

	i.pub.Broadcast(ctx, broadcast.Message{
		Origin:  broadcast.OriginIngress,
		Payload: payload,
	})

	return Ack{
		Status:  StatusSuccess,
		Message: "broadcast dispatched",
		Content: payload,
		Key:     payload,
	}
}

// ServeHTTP accepts the payload as a "message" or "key" parameter in the
// query string, a form body, or a JSON object body.
func (i *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Ack{Status: StatusError, Message: "method not allowed"})
		return
	}

	payload, err := payloadFrom(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Ack{Status: StatusError, Message: err.Error()})
		return
	}
	if payload == "" {
		writeJSON(w, http.StatusBadRequest, Ack{Status: StatusError, Message: "missing message or key parameter"})
		return
	}

	writeJSON(w, http.StatusOK, i.Trigger(r.Context(), payload))
}

type jsonBody struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

func payloadFrom(r *http.Request) (string, error) {
	q := r.URL.Query()
	if v := firstNonEmpty(q.Get("message"), q.Get("key")); v != "" {
		return v, nil
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return "", nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case ct == "application/json":
		var body jsonBody
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			return "", err
		}
		return firstNonEmpty(body.Message, body.Key), nil
	case ct == "application/x-www-form-urlencoded", strings.HasPrefix(ct, "multipart/"):
		return firstNonEmpty(r.PostFormValue("message"), r.PostFormValue("key")), nil
	}
	return "", nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
