package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
	"github.com/pwviptbl/CallCenter/pkg/ticket"
)

type sent struct {
	path   string
	apikey string
	body   sendTextRequest
}

func newEvolutionServer(t *testing.T, status int) (*httptest.Server, *[]sent) {
	t.Helper()
	var calls []sent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s sent
		s.path = r.URL.Path
		s.apikey = r.Header.Get("apikey")
		if err := json.NewDecoder(r.Body).Decode(&s.body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		calls = append(calls, s)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"key":{"id":"OUT1"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSendText(t *testing.T) {
	srv, calls := newEvolutionServer(t, http.StatusCreated)

	err := NewClient(0).SendText(context.Background(), srv.URL+"/", "tok", "inst-01", "+5511999990001", "Olá")
	if err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(*calls))
	}
	got := (*calls)[0]
	if got.path != "/message/sendText/inst-01" {
		t.Errorf("path = %q", got.path)
	}
	if got.apikey != "tok" {
		t.Errorf("apikey = %q", got.apikey)
	}
	if got.body.Number != "5511999990001" || got.body.Text != "Olá" {
		t.Errorf("body = %+v", got.body)
	}
}

func TestSendTextErrorStatus(t *testing.T) {
	srv, _ := newEvolutionServer(t, http.StatusBadRequest)
	if err := NewClient(0).SendText(context.Background(), srv.URL, "tok", "inst-01", "1", "x"); err == nil {
		t.Error("SendText() = nil error on HTTP 400")
	}
}

type channelMap map[uuid.UUID]tenant.Channel

func (m channelMap) GetChannel(_ context.Context, id uuid.UUID) (tenant.Channel, error) {
	c, ok := m[id]
	if !ok {
		return tenant.Channel{}, errors.New("not found")
	}
	return c, nil
}

func TestDelivererFallsBackToDefaults(t *testing.T) {
	srv, calls := newEvolutionServer(t, http.StatusOK)

	own, shared := uuid.New(), uuid.New()
	channels := channelMap{
		own:    {ID: own, InstanceKey: "inst-own", APIURL: srv.URL, APIToken: "own-token"},
		shared: {ID: shared, InstanceKey: "inst-shared"},
	}
	d := NewDeliverer(NewClient(0), channels, srv.URL, "global-token", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	d.Deliver(ctx, ticket.Ticket{ID: uuid.New(), ChannelID: &own, ContactPhone: "+551100"}, "a")
	d.Deliver(ctx, ticket.Ticket{ID: uuid.New(), ChannelID: &shared, ContactPhone: "+551101"}, "b")
	d.Deliver(ctx, ticket.Ticket{ID: uuid.New(), ContactPhone: "+551102"}, "manual ticket")
	missing := uuid.New()
	d.Deliver(ctx, ticket.Ticket{ID: uuid.New(), ChannelID: &missing, ContactPhone: "+551103"}, "unknown channel")

	if len(*calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(*calls))
	}
	if c := (*calls)[0]; c.apikey != "own-token" || c.path != "/message/sendText/inst-own" {
		t.Errorf("first call = %+v", c)
	}
	if c := (*calls)[1]; c.apikey != "global-token" || c.path != "/message/sendText/inst-shared" {
		t.Errorf("second call = %+v", c)
	}
}
