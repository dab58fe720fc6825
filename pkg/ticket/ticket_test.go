package ticket

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/pkg/notify"
	"github.com/pwviptbl/CallCenter/pkg/urgency"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status        Status
		terminal      bool
		acceptsAI     bool
		canRedispatch bool
	}{
		{StatusPending, false, true, false},
		{StatusAICollecting, false, true, false},
		{StatusAwaitingReview, false, false, true},
		{StatusInProgress, false, false, false},
		{StatusConfirmedManual, false, false, true},
		{StatusSentAPI, false, false, false},
		{StatusResolved, true, false, false},
		{StatusFailed, true, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if !tt.status.Valid() {
				t.Error("Valid() = false")
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.status.AcceptsAI(); got != tt.acceptsAI {
				t.Errorf("AcceptsAI() = %v, want %v", got, tt.acceptsAI)
			}
			if got := tt.status.CanRedispatch(); got != tt.canRedispatch {
				t.Errorf("CanRedispatch() = %v, want %v", got, tt.canRedispatch)
			}
		})
	}

	if Status("closed").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestBuildUpdate(t *testing.T) {
	id := uuid.New()
	attendant := uuid.New()

	tests := []struct {
		name     string
		update   Update
		wantSets []string
		wantArgs int
	}{
		{
			name:     "touch only",
			update:   Update{},
			wantSets: []string{"updated_at = now()"},
			wantArgs: 1,
		},
		{
			name:     "resolved stamps resolved_at",
			update:   Update{Status: Ptr(StatusResolved)},
			wantSets: []string{"status = $2", "resolved_at = now()"},
			wantArgs: 2,
		},
		{
			name:     "assignment stamps attended_at",
			update:   Update{Status: Ptr(StatusInProgress), AttendantID: &attendant},
			wantSets: []string{"status = $2", "attendant_id = $3", "attended_at = now()"},
			wantArgs: 3,
		},
		{
			name: "urgency with keywords",
			update: Update{
				UrgencyLevel:    Ptr(urgency.LevelCritical),
				UrgencyKeywords: []string{"preso"},
			},
			wantSets: []string{"urgency_level = $2", "urgency_keywords = $3"},
			wantArgs: 3,
		},
		{
			name:     "reset attempts",
			update:   Update{Status: Ptr(StatusSentAPI), ResetAttempts: true},
			wantSets: []string{"status = $2", "api_attempts = 0"},
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildUpdate(id, tt.update)
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
			if args[0] != id {
				t.Errorf("first arg = %v, want ticket id", args[0])
			}
			for _, s := range tt.wantSets {
				if !strings.Contains(query, s) {
					t.Errorf("query missing %q:\n%s", s, query)
				}
			}
			if !strings.Contains(query, "WHERE id = $1 RETURNING") {
				t.Errorf("query missing id filter:\n%s", query)
			}
			if tt.update.Status == nil && strings.Contains(query, "resolved_at = now()") {
				t.Error("resolved_at stamped without a status change")
			}
		})
	}
}

func TestTicketEvent(t *testing.T) {
	attendant := uuid.New()
	tk := Ticket{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		AttendantID:  &attendant,
		ContactName:  "João",
		ContactPhone: "+5511999990001",
		Status:       StatusInProgress,
		UrgencyLevel: urgency.LevelUrgent,
	}

	e := tk.Event(notify.ActionUpdated)
	if e.Name() != "service-request.updated" {
		t.Errorf("Name() = %q", e.Name())
	}
	p := e.Payload()
	if p.ID != tk.ID || p.Status != "in_progress" || p.UrgencyLevel != "urgent" || p.Action != notify.ActionUpdated {
		t.Errorf("payload = %+v", p)
	}
	if p.AttendantID == nil || *p.AttendantID != attendant {
		t.Errorf("AttendantID = %v, want %v", p.AttendantID, attendant)
	}
}

func TestContactLockKey(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	if got := contactLockKey(id, "+5511999990001"); got != "0f8fad5b-d9cb-469f-a165-70867728950e|+5511999990001" {
		t.Errorf("contactLockKey = %q", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	for in, want := range map[string]string{
		"+55 (11) 3000-0000": "+551130000000",
		"551130000000":       "+551130000000",
		"+551130000000":      "+551130000000",
		"sem telefone":       "",
	} {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
