package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testPayload struct {
	Keyword   string `json:"keyword" validate:"required,max=255"`
	MatchType string `json:"match_type" validate:"required,oneof=exact contains regex"`
	Priority  int    `json:"priority_level" validate:"omitempty,gte=1,lte=10"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid JSON",
			body:    `{"keyword":"fogo","match_type":"contains"}`,
			wantErr: false,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
			errMsg:  "request body is empty",
		},
		{
			name:    "invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "unknown field",
			body:    `{"keyword":"fogo","unknown":"field"}`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "trailing data",
			body:    `{"keyword":"fogo"}{"extra":true}`,
			wantErr: true,
			errMsg:  "request body must contain a single JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p testPayload
			err := Decode(r, &p)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want to contain %q", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		payload    testPayload
		wantFields []string
	}{
		{
			name:    "valid payload",
			payload: testPayload{Keyword: "fogo", MatchType: "contains", Priority: 5},
		},
		{
			name:       "missing required fields",
			payload:    testPayload{},
			wantFields: []string{"keyword", "match_type"},
		},
		{
			name:       "unknown match type",
			payload:    testPayload{Keyword: "fogo", MatchType: "fuzzy"},
			wantFields: []string{"match_type"},
		},
		{
			name:       "priority out of range",
			payload:    testPayload{Keyword: "fogo", MatchType: "exact", Priority: 11},
			wantFields: []string{"priority_level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.payload)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("Validate() returned %d errors, want %d: %+v", len(errs), len(tt.wantFields), errs)
			}
			for i, f := range tt.wantFields {
				if errs[i].Field != f {
					t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, f)
				}
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{
			name:   "valid request",
			body:   `{"keyword":"socorro","match_type":"exact"}`,
			wantOK: true,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantOK:     false,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing required fields",
			body:       `{"keyword":"socorro"}`,
			wantOK:     false,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var p testPayload
			ok := DecodeAndValidate(w, r, &p)
			if ok != tt.wantOK {
				t.Errorf("DecodeAndValidate() = %v, want %v", ok, tt.wantOK)
			}
			if !ok && w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRespondValidationErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	RespondValidationError(w, []ValidationError{{Field: "keyword", Message: "this field is required"}})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var body ValidationErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != "validation_error" || len(body.Details) != 1 || body.Details[0].Field != "keyword" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestPhoneValidation(t *testing.T) {
	type contact struct {
		Phone string `json:"contact_phone" validate:"required,phone"`
	}
	tests := []struct {
		phone string
		valid bool
	}{
		{"+5511999990001", true},
		{"5511999990001", true},
		{"+55 (11) 99999-0001", true},
		{"1234", false},
		{"+55abc99990001", false},
		{"-5511999990001", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			errs := Validate(contact{Phone: tt.phone})
			if got := len(errs) == 0; got != tt.valid {
				t.Errorf("valid = %v, want %v (%+v)", got, tt.valid, errs)
			}
			if !tt.valid && len(errs) == 1 && errs[0].Message != "must be a phone number" {
				t.Errorf("message = %q", errs[0].Message)
			}
		})
	}
}
