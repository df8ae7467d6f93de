package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/szaher/designs/keyreplay/internal/account"
	"github.com/szaher/designs/keyreplay/internal/automation"
	"github.com/szaher/designs/keyreplay/internal/secrets"
	"github.com/szaher/designs/keyreplay/internal/session"
	"github.com/szaher/designs/keyreplay/internal/telemetry"
	tu "github.com/szaher/designs/keyreplay/internal/testutil"
)

const rfcSeed = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

type fakeDecrypter struct {
	mu    sync.Mutex
	data  map[string]map[string]string
	calls int
}

func (f *fakeDecrypter) Decrypt(_ context.Context, path string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.data[filepath.Base(path)]
	if !ok {
		return nil, &secrets.DecryptError{Path: path, Err: fmt.Errorf("no key for %s", filepath.Base(path))}
	}
	return maps.Clone(d), nil
}

type fixture struct {
	service  *Service
	sink     *automation.Recorder
	slot     *session.MemoryStore
	dec      *fakeDecrypter
	metrics  *telemetry.Metrics
	sleeps   []time.Duration
	logs     *bytes.Buffer
	redactor *secrets.RedactFilter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	tu.WriteFile(t, filepath.Join(base, "site.conf"), "url: https://example.com/login\nscript: plain_1page\n")
	tu.WriteFile(t, filepath.Join(base, "site.gpg"), "ciphertext")
	tu.WriteFile(t, filepath.Join(base, "mfa.conf"), "url: https://mfa.example.com\nscript:\n  type: <<totp>>\n  key: Return\n")
	tu.WriteFile(t, filepath.Join(base, "mfa.gpg"), "ciphertext")
	tu.WriteFile(t, filepath.Join(base, "nourl.conf"), "script:\n  type: <<password>>\n")
	tu.WriteFile(t, filepath.Join(base, "nourl.gpg"), "ciphertext")
	tu.WriteFile(t, filepath.Join(base, "broken.conf"), "url: https://broken.example.com\n")
	tu.WriteFile(t, filepath.Join(base, "broken.gpg"), "ciphertext")
	tu.WriteFile(t, filepath.Join(base, "blank.conf"), "url: https://blank.example.com\nscript: plain_1page\n")
	tu.WriteFile(t, filepath.Join(base, "blank.gpg"), "ciphertext")

	store, err := account.NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	f := &fixture{
		sink: automation.NewRecorder(nil, nil),
		slot: session.NewMemoryStore(0),
		dec: &fakeDecrypter{data: map[string]map[string]string{
			"site.gpg":  {"username": "alice", "password": "hunter2"},
			"mfa.gpg":   {"totp": rfcSeed},
			"nourl.gpg": {"password": "pw"},
			"blank.gpg": {},
		}},
		metrics: telemetry.NewMetrics(),
		logs:    &bytes.Buffer{},
	}
	f.redactor = secrets.NewRedactFilter(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f.service, err = NewService(Options{
		Accounts:  store,
		Decrypter: f.dec,
		Sink:      f.sink,
		Slot:      f.slot,
		Logger:    slog.New(f.redactor),
		Redactor:  f.redactor,
		Metrics:   f.metrics,
		GoDelay:   DefaultGoDelay,
		Now:       func() time.Time { return time.Unix(59, 0) },
		Sleeper: func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return f
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Options{})
	tu.AssertErrorContains(t, err, "account store is required")
}

func TestSelect_RemembersAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url, err := f.service.Select(ctx, "site")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if url != "https://example.com/login" {
		t.Errorf("url = %q, want %q", url, "https://example.com/login")
	}
	got, err := f.slot.Get(ctx, session.SlotAccount)
	if err != nil || got != "site" {
		t.Errorf("slot = %q, %v; want %q", got, err, "site")
	}
	if body := scrape(t, f.metrics); !strings.Contains(body, `keyreplay_lookups_total{result="ok"} 1`) {
		t.Errorf("lookup not counted:\n%s", body)
	}
}

func TestSelect_NoURLLeavesSlotUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.slot.Put(ctx, session.SlotAccount, "site")

	_, err := f.service.Select(ctx, "nourl")
	if !errors.Is(err, account.ErrNoURL) {
		t.Fatalf("Select() = %v, want ErrNoURL", err)
	}
	if got, _ := f.slot.Get(ctx, session.SlotAccount); got != "site" {
		t.Errorf("slot = %q, want %q", got, "site")
	}
}

func TestSelect_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Select(context.Background(), "missing")
	if !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("Select() = %v, want ErrNotFound", err)
	}
}

func TestGo_ReplaysSelectedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Select(ctx, "site"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if err := f.service.Go(ctx); err != nil {
		t.Fatalf("Go: %v", err)
	}

	calls := f.sink.Calls()
	want := []automation.Call{
		{Op: automation.OpType, Text: "alice"},
		{Op: automation.OpKey, Text: "Tab"},
		{Op: automation.OpType, Text: "hunter2"},
		{Op: automation.OpKey, Text: "Return"},
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %+v", len(calls), len(want), calls)
	}
	for i, w := range want {
		if calls[i].Op != w.Op || calls[i].Text != w.Text {
			t.Errorf("call %d = %s %q, want %s %q", i, calls[i].Op, calls[i].Text, w.Op, w.Text)
		}
	}
	if len(f.sleeps) == 0 || f.sleeps[0] != DefaultGoDelay {
		t.Errorf("sleeps = %v, want go delay %v first", f.sleeps, DefaultGoDelay)
	}
	body := scrape(t, f.metrics)
	for _, want := range []string{
		`keyreplay_script_runs_total{status="ok"} 1`,
		`keyreplay_commands_total{command="type"} 2`,
		`keyreplay_decrypt_duration_seconds_count{status="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestGo_NothingSelected(t *testing.T) {
	f := newFixture(t)
	err := f.service.Go(context.Background())
	if !errors.Is(err, session.ErrEmpty) {
		t.Fatalf("Go() = %v, want ErrEmpty", err)
	}
	if f.dec.calls != 0 {
		t.Errorf("decrypter called %d times, want 0", f.dec.calls)
	}
}

func TestReplay_DecryptFailureTypesNothing(t *testing.T) {
	f := newFixture(t)
	err := f.service.Replay(context.Background(), "broken")
	if !errors.Is(err, secrets.ErrDecryptFailed) {
		t.Fatalf("Replay() = %v, want ErrDecryptFailed", err)
	}
	if calls := f.sink.Calls(); len(calls) != 0 {
		t.Errorf("got %d sink calls, want 0", len(calls))
	}
}

func TestReplay_EmptySecretDataTypesNothing(t *testing.T) {
	f := newFixture(t)
	err := f.service.Replay(context.Background(), "blank")
	if !errors.Is(err, secrets.ErrDecryptFailed) {
		t.Fatalf("Replay() = %v, want ErrDecryptFailed", err)
	}
	if calls := f.sink.Calls(); len(calls) != 0 {
		t.Errorf("got %d sink calls, want 0: %+v", len(calls), calls)
	}
	if !strings.Contains(scrape(t, f.metrics), `keyreplay_decrypt_duration_seconds_count{status="error"} 1`) {
		t.Errorf("empty result not recorded as a decrypt error")
	}
}

func TestReplay_CancelledDuringGoDelay(t *testing.T) {
	f := newFixture(t)
	f.service.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}
	err := f.service.Replay(context.Background(), "site")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Replay() = %v, want context.Canceled", err)
	}
	if calls := f.sink.Calls(); len(calls) != 0 {
		t.Errorf("got %d sink calls, want 0", len(calls))
	}
}

func TestReplay_DefaultSleeperHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	f.service.sleep = nil

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.service.Replay(ctx, "site"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Replay() = %v, want context.Canceled", err)
	}
	if calls := f.sink.Calls(); len(calls) != 0 {
		t.Errorf("got %d sink calls, want 0", len(calls))
	}
}

func TestReplay_DefaultScript(t *testing.T) {
	f := newFixture(t)
	f.service.defaultScript = "plain_1page"

	if err := f.service.Replay(context.Background(), "broken"); err == nil {
		t.Fatal("expected decrypt error for broken account")
	}

	f.dec.data["broken.gpg"] = map[string]string{"username": "bob", "password": "s3cret"}
	if err := f.service.Replay(context.Background(), "broken"); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	calls := f.sink.Calls()
	if len(calls) != 4 || calls[0].Text != "bob" || calls[2].Text != "s3cret" {
		t.Errorf("calls = %+v, want the plain_1page sequence", calls)
	}
}

func TestReplay_SecretsRedactedFromLogs(t *testing.T) {
	f := newFixture(t)
	if err := f.service.Replay(context.Background(), "site"); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	f.service.logger.Info("typed", "value", "hunter2")
	if strings.Contains(f.logs.String(), "hunter2") {
		t.Errorf("log output leaks secret:\n%s", f.logs.String())
	}
	if got := f.service.Redact("pw is hunter2"); got != "pw is "+secrets.Redacted {
		t.Errorf("Redact() = %q", got)
	}
}

func TestReplay_TOTPPlaceholder(t *testing.T) {
	f := newFixture(t)
	if err := f.service.Replay(context.Background(), "mfa"); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	calls := f.sink.Calls()
	if len(calls) == 0 || calls[0].Text != "287082" {
		t.Fatalf("calls = %+v, want totp code typed first", calls)
	}
}

func TestTOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.service.TOTP(ctx, "mfa")
	if err != nil {
		t.Fatalf("TOTP: %v", err)
	}
	if code != "287082" {
		t.Errorf("code = %q, want %q", code, "287082")
	}

	for _, name := range []string{"", "null"} {
		if _, err := f.service.TOTP(ctx, name); !errors.Is(err, session.ErrEmpty) {
			t.Errorf("TOTP(%q) with empty slot = %v, want ErrEmpty", name, err)
		}
	}

	if _, err := f.service.Select(ctx, "mfa"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if code, err := f.service.TOTP(ctx, "null"); err != nil || code != "287082" {
		t.Errorf("TOTP(null) = %q, %v; want %q", code, err, "287082")
	}

	if _, err := f.service.TOTP(ctx, "site"); !errors.Is(err, ErrNoTOTP) {
		t.Errorf("TOTP(site) = %v, want ErrNoTOTP", err)
	}
}

func TestShow(t *testing.T) {
	f := newFixture(t)
	d, data, err := f.service.Show(context.Background(), "site")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if d.URL != "https://example.com/login" {
		t.Errorf("URL = %q", d.URL)
	}
	if data["username"] != "alice" || data["password"] != "hunter2" {
		t.Errorf("data = %v", data)
	}
	if calls := f.sink.Calls(); len(calls) != 0 {
		t.Errorf("Show produced %d sink calls, want 0", len(calls))
	}
}

func TestCheck_DoesNotDecrypt(t *testing.T) {
	f := newFixture(t)
	_, cmds, err := f.service.Check(context.Background(), "mfa")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(cmds) != 2 || cmds[0].Name != "type" || cmds[0].Arg != "<<totp>>" {
		t.Errorf("commands = %+v", cmds)
	}
	if f.dec.calls != 0 {
		t.Errorf("decrypter called %d times, want 0", f.dec.calls)
	}
}

func scrape(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}
