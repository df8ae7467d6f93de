package runtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/szaher/designs/keyreplay/internal/session"
)

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	srv := NewServer(f.service, WithLogger(f.service.logger), WithMetricsHandler(f.metrics.Handler()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return f, ts
}

func noRedirect(t *testing.T) *http.Client {
	t.Helper()
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func decodeError(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestServer_Healthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if resp.Header.Get(correlationHeader) == "" {
		t.Error("missing correlation header")
	}
}

func TestServer_CorrelationIDEchoed(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set(correlationHeader, "abc123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(correlationHeader); got != "abc123" {
		t.Errorf("correlation id = %q, want %q", got, "abc123")
	}
}

func TestServer_SelectRedirects(t *testing.T) {
	f, ts := newTestServer(t)

	resp, err := noRedirect(t).Get(ts.URL + "/?account=site")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "https://example.com/login" {
		t.Errorf("Location = %q", got)
	}
	if got, _ := f.slot.Get(context.Background(), session.SlotAccount); got != "site" {
		t.Errorf("slot = %q, want %q", got, "site")
	}
}

func TestServer_ErrorStatuses(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{"missing account", "/", http.StatusBadRequest, "missing_account"},
		{"unknown account", "/?account=nope", http.StatusNotFound, "not_found"},
		{"traversal", "/?account=../../etc/passwd", http.StatusNotFound, "not_found"},
		{"no url", "/?account=nourl", http.StatusUnprocessableEntity, "no_url"},
		{"go without selection", "/?mode=go", http.StatusConflict, "no_account_selected"},
		{"totp without selection", "/?mode=totp&account=null", http.StatusConflict, "no_account_selected"},
		{"totp without seed", "/?mode=totp&account=site", http.StatusUnprocessableEntity, "no_totp"},
		{"decrypt failure", "/?mode=totp&account=broken", http.StatusBadGateway, "decrypt_failed"},
		{"unknown mode", "/?mode=dance", http.StatusBadRequest, "unknown_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := noRedirect(t).Get(ts.URL + tt.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body := decodeError(t, resp); body["error"] != tt.code {
				t.Errorf("error = %q, want %q", body["error"], tt.code)
			}
		})
	}
}

func TestServer_GoReplaysSelection(t *testing.T) {
	f, ts := newTestServer(t)
	client := noRedirect(t)

	resp, err := client.Get(ts.URL + "/?account=site")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	resp.Body.Close()

	resp, err = client.Get(ts.URL + "/?mode=go")
	if err != nil {
		t.Fatalf("go: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if calls := f.sink.Calls(); len(calls) != 4 || calls[2].Text != "hunter2" {
		t.Errorf("calls = %+v", calls)
	}
}

func healthReplaying(t *testing.T, ts *httptest.Server) bool {
	t.Helper()
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Replaying bool `json:"replaying"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Replaying
}

func TestServer_HealthzReplayingWhileGoRequestsOverlap(t *testing.T) {
	f, ts := newTestServer(t)
	if err := f.slot.Put(context.Background(), session.SlotAccount, "site"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gate := make(chan struct{})
	f.service.sleep = func(ctx context.Context, _ time.Duration) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan int, 2)
	goRequest := func() {
		resp, err := http.Get(ts.URL + "/?mode=go")
		if err != nil {
			t.Errorf("go: %v", err)
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}
	go goRequest()
	go goRequest()

	// Both requests have decrypted: one waits in the go delay, the other on
	// the replay lock.
	deadline := time.Now().Add(5 * time.Second)
	for {
		f.dec.mu.Lock()
		calls := f.dec.calls
		f.dec.mu.Unlock()
		if calls == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("decrypter calls = %d, want 2", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}

	gate <- struct{}{}
	if status := <-done; status != http.StatusOK {
		t.Fatalf("first go status = %d, want 200", status)
	}
	if !healthReplaying(t, ts) {
		t.Error("healthz reports idle while a replay is still queued")
	}

	gate <- struct{}{}
	if status := <-done; status != http.StatusOK {
		t.Fatalf("second go status = %d, want 200", status)
	}
	if healthReplaying(t, ts) {
		t.Error("healthz reports replaying after both finished")
	}
}

func TestServer_TOTPPage(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/?mode=totp&account=mfa")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	page := string(raw)
	if !strings.Contains(page, `value="287082"`) {
		t.Errorf("page missing code:\n%s", page)
	}
	if !strings.Contains(page, "clipboard") {
		t.Errorf("page missing copy button:\n%s", page)
	}
}

func TestServer_ErrorMessagesRedacted(t *testing.T) {
	f, ts := newTestServer(t)
	f.redactor.AddSecret("broken")

	resp, err := http.Get(ts.URL + "/?mode=totp&account=broken")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if msg := decodeError(t, resp)["message"]; strings.Contains(msg, "broken") {
		t.Errorf("message leaks secret: %q", msg)
	}
}

func TestServer_Metrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := noRedirect(t).Get(ts.URL + "/?account=site")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `keyreplay_lookups_total{result="ok"} 1`) {
		t.Errorf("metrics missing lookup counter")
	}
}

func TestErrorStatus_Default(t *testing.T) {
	status, code := errorStatus(context.DeadlineExceeded)
	if status != http.StatusInternalServerError || code != "internal_error" {
		t.Errorf("errorStatus() = %d %q", status, code)
	}
}
