package tenant

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := FromContext(ctx); got != nil {
		t.Fatalf("expected nil tenant, got %+v", got)
	}

	info := &Info{ID: uuid.New(), Slug: "acme"}
	ctx = NewContext(ctx, info)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected tenant info, got nil")
	}
	if got.ID != info.ID || got.Slug != "acme" {
		t.Errorf("got %+v, want %+v", got, info)
	}
}

func TestDispatchConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  DispatchConfig
		want bool
	}{
		{"enabled with endpoint", DispatchConfig{Enabled: true, Endpoint: "https://api.example.com/tickets"}, true},
		{"disabled", DispatchConfig{Enabled: false, Endpoint: "https://api.example.com/tickets"}, false},
		{"enabled without endpoint", DispatchConfig{Enabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchHTTPMethod(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", http.MethodPost},
		{"post", http.MethodPost},
		{"PUT", http.MethodPut},
		{" patch ", http.MethodPatch},
		{"DELETE", http.MethodPost},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := (DispatchConfig{Method: tt.in}).HTTPMethod(); got != tt.want {
				t.Errorf("HTTPMethod(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChannelStatusFromProvider(t *testing.T) {
	tests := []struct {
		state  string
		want   ChannelStatus
		wantOK bool
	}{
		{"open", ChannelConnected, true},
		{"connecting", ChannelConnecting, true},
		{"close", ChannelDisconnected, true},
		{"QRCODE", ChannelQRRequired, true},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got, ok := ChannelStatusFromProvider(tt.state)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ChannelStatusFromProvider(%q) = %q, %v; want %q, %v", tt.state, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
