package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"internwatch/internal/config"
	"internwatch/internal/domain"
	"internwatch/internal/events"
	"internwatch/internal/poll"
)

type fakePoller struct {
	status   poll.Status
	listings []domain.Listing
	res      poll.Result
	err      error
	gotReqID string
}

func (f *fakePoller) Status() poll.Status { return f.status }

func (f *fakePoller) Listings(context.Context) ([]domain.Listing, error) {
	return f.listings, f.err
}

func (f *fakePoller) Trigger(_ context.Context, reqID string) (poll.Result, error) {
	f.gotReqID = reqID
	return f.res, f.err
}

func newTestHandler(p Poller, hub *events.Hub) http.Handler {
	cfg := config.Default()
	cfg.Email.Password = "hunter2"
	return NewHandler(Deps{
		Poller:  p,
		Hub:     hub,
		Config:  func() config.Config { return cfg },
		Version: "test",
		Log:     zerolog.Nop(),
	})
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Request-ID", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestHandler(&fakePoller{}, nil), http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "rid-1" {
		t.Fatalf("X-Request-ID = %q", got)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["ok"] != true || body["version"] != "test" {
		t.Fatalf("body = %v", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestHandler(&fakePoller{}, nil), http.MethodGet, "/run")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	var e APIError
	decode(t, rec, &e)
	if e.Error.Code != "method_not_allowed" || e.Error.RequestID != "rid-1" {
		t.Fatalf("error = %+v", e.Error)
	}
}

func TestStatusAndListings(t *testing.T) {
	t.Parallel()

	p := &fakePoller{
		status:   poll.Status{Runs: 3, LastNew: 1},
		listings: []domain.Listing{{Company: "Acme", Role: "SWE", Link: "https://a.example"}},
	}
	h := newTestHandler(p, nil)

	var st poll.Status
	decode(t, do(t, h, http.MethodGet, "/status"), &st)
	if st.Runs != 3 || st.LastNew != 1 {
		t.Fatalf("status = %+v", st)
	}

	var body struct {
		Count    int              `json:"count"`
		Listings []domain.Listing `json:"listings"`
	}
	decode(t, do(t, h, http.MethodGet, "/listings"), &body)
	if body.Count != 1 || body.Listings[0].Company != "Acme" {
		t.Fatalf("listings = %+v", body)
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode  int
		wantErr   string
		wantStage poll.Stage
	}{
		{"ok", nil, http.StatusOK, "", ""},
		{"busy", poll.ErrBusy, http.StatusConflict, "busy", ""},
		{"stage", &poll.StageError{Stage: poll.StageNotify, Err: errors.New("smtp")}, http.StatusBadGateway, "notify_failed", poll.StageNotify},
		{"wrapped stage", fmt.Errorf("cycle: %w", &poll.StageError{Stage: poll.StageParse, Err: errors.New("no table")}), http.StatusBadGateway, "parse_failed", poll.StageParse},
		{"other", errors.New("lock: permission denied"), http.StatusBadGateway, "run_failed", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &fakePoller{res: poll.Result{Parsed: 4}, err: tt.err}
			rec := do(t, newTestHandler(p, nil), http.MethodPost, "/run")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if p.gotReqID != "rid-1" {
				t.Fatalf("request id passed = %q", p.gotReqID)
			}
			if tt.wantErr == "" {
				var res poll.Result
				decode(t, rec, &res)
				if res.Parsed != 4 {
					t.Fatalf("result = %+v", res)
				}
				return
			}
			var e APIError
			decode(t, rec, &e)
			if e.Error.Code != tt.wantErr || e.Error.Stage != tt.wantStage {
				t.Fatalf("error = %+v, want code %q stage %q", e.Error, tt.wantErr, tt.wantStage)
			}
			if e.Error.RequestID != "rid-1" {
				t.Fatalf("request id = %q", e.Error.RequestID)
			}
		})
	}
}

func TestConfigIsRedacted(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestHandler(&fakePoller{}, nil), http.MethodGet, "/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatal("password leaked")
	}

	var vr config.Validation
	decode(t, do(t, newTestHandler(&fakePoller{}, nil), http.MethodGet, "/config/validate"), &vr)
}

func TestRecoverFromPanic(t *testing.T) {
	t.Parallel()

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID, Recover(zerolog.Nop()))

	rec := do(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var e APIError
	decode(t, rec, &e)
	if e.Error.Code != "internal_error" {
		t.Fatalf("code = %q", e.Error.Code)
	}
}

func TestEventsStream(t *testing.T) {
	t.Parallel()

	hub := events.NewHub()
	srv := httptest.NewServer(newTestHandler(&fakePoller{}, hub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return ""
	}

	if got := next(); got != "ping" {
		t.Fatalf("first event = %q", got)
	}
	hub.Publish(events.Make("", events.TypeRunFinished, nil))
	if got := next(); got != events.TypeRunFinished {
		t.Fatalf("second event = %q", got)
	}
}
