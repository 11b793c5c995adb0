package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/keycast/keycast/internal/broadcast"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (p *recordingPublisher) Broadcast(_ context.Context, msg broadcast.Message) broadcast.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return broadcast.Report{}
}

func (p *recordingPublisher) payloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Payload
	}
	return out
}

func TestTrigger(t *testing.T) {
	pub := &recordingPublisher{}
	ack := New(pub).Trigger(context.Background(), "a")

	if ack.Status != StatusSuccess || ack.Content != "a" || ack.Key != "a" {
		t.Errorf("ack = %+v", ack)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	if pub.msgs[0].Origin != broadcast.OriginIngress {
		t.Errorf("origin = %q, want ingress", pub.msgs[0].Origin)
	}
}

func TestServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		wantStatus  int
		wantPayload string
	}{
		{name: "query message", method: http.MethodGet, target: "/send-key?message=a", wantStatus: 200, wantPayload: "a"},
		{name: "query key", method: http.MethodGet, target: "/send-key?key=b", wantStatus: 200, wantPayload: "b"},
		{name: "message wins over key", method: http.MethodGet, target: "/send-key?key=b&message=a", wantStatus: 200, wantPayload: "a"},
		{name: "unicode", method: http.MethodGet, target: "/send-key?message=" + url.QueryEscape("héllo ✓"), wantStatus: 200, wantPayload: "héllo ✓"},
		{name: "form body", method: http.MethodPost, target: "/api/broadcast", contentType: "application/x-www-form-urlencoded", body: "message=c", wantStatus: 200, wantPayload: "c"},
		{name: "json body", method: http.MethodPost, target: "/api/broadcast", contentType: "application/json", body: `{"key":"d"}`, wantStatus: 200, wantPayload: "d"},
		{name: "query on post", method: http.MethodPost, target: "/api/broadcast?message=e", wantStatus: 200, wantPayload: "e"},
		{name: "missing", method: http.MethodGet, target: "/send-key", wantStatus: 400},
		{name: "empty", method: http.MethodGet, target: "/send-key?message=", wantStatus: 400},
		{name: "bad json", method: http.MethodPost, target: "/api/broadcast", contentType: "application/json", body: `{`, wantStatus: 400},
		{name: "wrong method", method: http.MethodDelete, target: "/send-key?message=a", wantStatus: 405},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			h := New(pub)

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var ack Ack
			if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
				t.Fatalf("decode: %v", err)
			}

			if tt.wantStatus != http.StatusOK {
				if ack.Status != StatusError {
					t.Errorf("status field = %q, want error", ack.Status)
				}
				if got := pub.payloads(); len(got) != 0 {
					t.Errorf("rejected request published %v", got)
				}
				return
			}

			if ack.Status != StatusSuccess || ack.Content != tt.wantPayload {
				t.Errorf("ack = %+v, want content %q", ack, tt.wantPayload)
			}
			if got := pub.payloads(); len(got) != 1 || got[0] != tt.wantPayload {
				t.Errorf("published %v, want [%q]", got, tt.wantPayload)
			}
		})
	}
}
