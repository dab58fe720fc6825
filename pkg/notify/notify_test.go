package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goslack "github.com/slack-go/slack"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	name   string
	err    error
	events []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(_ context.Context, e Event) error {
	s.events = append(s.events, e)
	return s.err
}

func TestEventPayload(t *testing.T) {
	attendant := uuid.New()
	e := Event{
		Action:       ActionUrgency,
		TenantID:     uuid.MustParse("0b9a3c8e-5d1f-4e2a-9c7b-1a2b3c4d5e6f"),
		TicketID:     uuid.New(),
		Status:       "pending",
		UrgencyLevel: "critical",
		ContactName:  "João",
		ContactPhone: "+5511999990001",
		AttendantID:  &attendant,
		UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600)),
	}

	if got := e.Name(); got != "service-request.urgency" {
		t.Errorf("Name() = %q", got)
	}
	if got := Topic(e.TenantID); got != "company.0b9a3c8e-5d1f-4e2a-9c7b-1a2b3c4d5e6f" {
		t.Errorf("Topic() = %q", got)
	}

	raw, err := json.Marshal(e.Payload())
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "status", "urgency_level", "contact_name", "contact_phone", "attendant_id", "updated_at", "action"} {
		if _, ok := body[key]; !ok {
			t.Errorf("payload missing %q: %s", key, raw)
		}
	}
	if body["updated_at"] != "2026-03-01T15:00:00Z" {
		t.Errorf("updated_at = %v, want UTC RFC3339", body["updated_at"])
	}
	if body["action"] != "urgency" {
		t.Errorf("action = %v", body["action"])
	}
}

func TestMultiContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	m := NewMulti(discardLogger(), failing, nil, ok)

	m.Emit(context.Background(), Event{Action: ActionCreated, TicketID: uuid.New()})

	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(failing.events), len(ok.events))
	}
}

func TestWants(t *testing.T) {
	tests := []struct {
		action Action
		level  string
		want   bool
	}{
		{ActionEscalated, "normal", true},
		{ActionUrgency, "critical", true},
		{ActionUrgency, "urgent", false},
		{ActionCreated, "critical", false},
		{ActionMessage, "critical", false},
	}
	for _, tt := range tests {
		if got := Wants(Event{Action: tt.action, UrgencyLevel: tt.level}); got != tt.want {
			t.Errorf("Wants(%s, %s) = %v, want %v", tt.action, tt.level, got, tt.want)
		}
	}
}

type staticChannels map[uuid.UUID]string

func (s staticChannels) SlackChannel(_ context.Context, id uuid.UUID) (string, error) {
	return s[id], nil
}

func TestSlackSinkPostsToTenantChannel(t *testing.T) {
	var mu sync.Mutex
	var channels []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "chat.postMessage") {
			t.Errorf("unexpected slack call %s", r.URL.Path)
		}
		_ = r.ParseForm()
		mu.Lock()
		channels = append(channels, r.FormValue("channel"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"channel":"C1","ts":"1700000000.000100"}`)
	}))
	defer srv.Close()

	withChannel, withoutChannel := uuid.New(), uuid.New()
	lookup := staticChannels{withChannel: "#tenant-ops"}
	sink := NewSlackSink("xoxb-test", "#callcenter", lookup, discardLogger(), goslack.OptionAPIURL(srv.URL+"/"))

	ctx := context.Background()
	if err := sink.Notify(ctx, Event{Action: ActionEscalated, TenantID: withChannel, Reason: "cliente pediu atendente"}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if err := sink.Notify(ctx, Event{Action: ActionUrgency, UrgencyLevel: "critical", TenantID: withoutChannel}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	// Not worth a post.
	if err := sink.Notify(ctx, Event{Action: ActionUpdated, TenantID: withChannel}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(channels) != 2 || channels[0] != "#tenant-ops" || channels[1] != "#callcenter" {
		t.Errorf("posted to %v, want [#tenant-ops #callcenter]", channels)
	}
}

func TestNewSlackSinkDisabledWithoutToken(t *testing.T) {
	if sink := NewSlackSink("", "#callcenter", nil, discardLogger()); sink != nil {
		t.Error("NewSlackSink() without token should be nil")
	}
}

func TestTenantFromTopic(t *testing.T) {
	id := uuid.New()
	got, err := tenantFromTopic(Topic(id))
	if err != nil || got != id {
		t.Errorf("tenantFromTopic() = %s, %v; want %s", got, err, id)
	}
	if _, err := tenantFromTopic("company.not-a-uuid"); err == nil {
		t.Error("tenantFromTopic() accepted malformed topic")
	}
}

func TestHubDeliversOnlyToTenantClients(t *testing.T) {
	hub := NewHub(nil, discardLogger())
	tenantA, tenantB := uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.MustParse(r.URL.Query().Get("tenant"))
		hub.ServeHTTP(w, r.WithContext(tenant.NewContext(r.Context(), &tenant.Info{ID: id})))
	}))
	defer srv.Close()

	dial := func(id uuid.UUID) *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=" + id.String()
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}

	connA := dial(tenantA)
	defer connA.Close()
	connB := dial(tenantB)
	defer connB.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount(tenantA) != 1 || hub.ClientCount(tenantB) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(tenantA, []byte(`{"event":"service-request.created"}`))

	_ = connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := connA.ReadMessage()
	if err != nil {
		t.Fatalf("tenant A read: %v", err)
	}
	if string(msg) != `{"event":"service-request.created"}` {
		t.Errorf("tenant A got %s", msg)
	}

	_ = connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := connB.ReadMessage(); err == nil {
		t.Error("tenant B received another tenant's event")
	}
}

func TestHubRejectsWithoutTenant(t *testing.T) {
	hub := NewHub(nil, discardLogger())
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
