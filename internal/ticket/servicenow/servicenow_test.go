package servicenow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/intake/internal/retry"
	"github.com/linnemanlabs/intake/internal/ticket"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func testTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ShortDescription: "VPN connection instability",
		Description:      "details",
		Category:         "Network",
		Urgency:          2,
		Impact:           3,
		Priority:         2,
		CallerID:         "alice@example.com",
		ContactType:      "email",
		WorkNotes:        "notes",
	}
}

func createdResponse(w http.ResponseWriter) {
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"result": map[string]string{"number": "INC0012345", "sys_id": "abc123"},
	})
}

func TestCreateIncident(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/now/table/incident" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api-user" || pass != "secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["short_description"] != "VPN connection instability" {
			t.Errorf("short_description = %v", payload["short_description"])
		}
		if payload["caller_id"] != "alice@example.com" {
			t.Errorf("caller_id = %v", payload["caller_id"])
		}
		createdResponse(w)
	}))
	defer srv.Close()

	c := New(srv.URL, "api-user", "secret", fastPolicy())
	rec, err := c.CreateIncident(context.Background(), testTicket())
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if rec.Number != "INC0012345" {
		t.Errorf("Number = %q", rec.Number)
	}
	if rec.SysID != "abc123" {
		t.Errorf("SysID = %q", rec.SysID)
	}
	if !strings.Contains(rec.URL, "sys_id=abc123") {
		t.Errorf("URL = %q, want sys_id link", rec.URL)
	}
}

func TestCreateIncident_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		createdResponse(w)
	}))
	defer srv.Close()

	c := New(srv.URL, "u", "p", fastPolicy())
	rec, err := c.CreateIncident(context.Background(), testTicket())
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if rec.Number != "INC0012345" {
		t.Errorf("Number = %q", rec.Number)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCreateIncident_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "u", "p", fastPolicy())
	_, err := c.CreateIncident(context.Background(), testTicket())
	if err == nil {
		t.Fatal("CreateIncident = nil, want error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCreateIncident_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "invalid field", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "u", "p", fastPolicy())
	_, err := c.CreateIncident(context.Background(), testTicket())
	if err == nil {
		t.Fatal("CreateIncident = nil, want error")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want 400 included", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
}

func TestCreateIncident_IncompleteRecord(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]string{"number": ""}})
	}))
	defer srv.Close()

	c := New(srv.URL, "u", "p", fastPolicy())
	_, err := c.CreateIncident(context.Background(), testTicket())
	if err == nil {
		t.Fatal("CreateIncident = nil, want error for incomplete record")
	}
}

func TestGetIncident(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/now/table/incident/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{
				"number": "INC0012345", "sys_id": "abc123",
				"state": "2", "short_description": "VPN connection instability",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "u", "p", fastPolicy())
	inc, err := c.GetIncident(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if inc.Number != "INC0012345" || inc.State != "2" {
		t.Errorf("incident = %+v", inc)
	}
}

func TestGetIncident_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no record", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "u", "p", fastPolicy())
	_, err := c.GetIncident(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"down", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("sysparm_limit") != "1" {
					t.Errorf("missing sysparm_limit, query = %s", r.URL.RawQuery)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := New(srv.URL, "u", "p", fastPolicy()).CheckHealth(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckHealth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
