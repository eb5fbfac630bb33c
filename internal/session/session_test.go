package session

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/qthlink/qthlink/internal/audit"
	"github.com/qthlink/qthlink/internal/auth"
	"github.com/qthlink/qthlink/internal/command"
	"github.com/qthlink/qthlink/internal/entity"
)

const testSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

type mapSource map[string]string

func (m mapSource) Secret(identity string) (string, bool) {
	s, ok := m[identity]
	return s, ok
}

// codeAt computes a valid code for the test secret at the given time.
// The authenticator accepts a three-step skew, so codes for adjacent
// steps let tests present distinct valid codes in one run.
func codeAt(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(testSecret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      3,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	return code
}

type fakeProvider struct {
	mu      sync.Mutex
	onCalls int
}

func (f *fakeProvider) ListEntities(ctx context.Context) ([]entity.Entity, error) {
	return []entity.Entity{
		{NativeID: "light.kitchen", Name: "Kitchen", State: "on"},
		{NativeID: "switch.heater", Name: "Heater", State: "off"},
	}, nil
}

func (f *fakeProvider) TurnOn(ctx context.Context, nativeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCalls++
	return nil
}

func (f *fakeProvider) TurnOff(ctx context.Context, nativeID string) error             { return nil }
func (f *fakeProvider) SetValue(ctx context.Context, nativeID string, v float64) error { return nil }
func (f *fakeProvider) TriggerAutomation(ctx context.Context, nativeID string) error   { return nil }

type testHarness struct {
	client   net.Conn
	reader   *bufio.Reader
	registry *Registry
	provider *fakeProvider
	done     chan struct{}
}

func startSession(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	provider := &fakeProvider{}
	cache := entity.NewCache(provider, nil, time.Minute)
	dispatcher := command.NewDispatcher(cache, provider, entity.DefaultRanges(), 10, zerolog.Nop())

	authenticator := auth.NewAuthenticator(
		mapSource{"KN4XYZ": testSecret},
		auth.NewRateLimiter(5, 5*time.Minute),
	)

	auditLog, _, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	registry := NewRegistry()
	sess := New(serverConn, cfg, authenticator, registry, dispatcher, auditLog, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(context.Background())
	}()

	return &testHarness{
		client:   clientConn,
		reader:   bufio.NewReader(clientConn),
		registry: registry,
		provider: provider,
		done:     done,
	}
}

// readUntil consumes output until the transcript ends with marker.
func (h *testHarness) readUntil(t *testing.T, marker string) string {
	t.Helper()
	h.client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var b strings.Builder
	for !strings.HasSuffix(b.String(), marker) {
		c, err := h.reader.ReadByte()
		if err != nil {
			t.Fatalf("waiting for %q, got %q, err %v", marker, b.String(), err)
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (h *testHarness) writeLine(t *testing.T, line string) {
	t.Helper()
	h.client.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := h.client.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func (h *testHarness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func promptedConfig() Config {
	return Config{
		Banner:          "QTHLink Gateway",
		MaxAuthAttempts: 3,
		IdleTimeout:     5 * time.Second,
	}
}

func TestPromptedAuthListAndQuit(t *testing.T) {
	h := startSession(t, promptedConfig())

	out := h.readUntil(t, "Callsign: ")
	if !strings.Contains(out, "QTHLink Gateway") {
		t.Errorf("banner missing: %q", out)
	}
	h.writeLine(t, "kn4xyz")

	h.readUntil(t, "TOTP Code: ")
	h.writeLine(t, codeAt(t, time.Now()))

	out = h.readUntil(t, "> ")
	if !strings.Contains(out, "Welcome KN4XYZ!") {
		t.Errorf("welcome missing: %q", out)
	}
	if h.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", h.registry.Count())
	}

	h.writeLine(t, "L")
	out = h.readUntil(t, "> ")
	if !strings.Contains(out, "DEVICES (pg 1/1)") || !strings.Contains(out, "Kitchen") {
		t.Errorf("listing missing: %q", out)
	}

	h.writeLine(t, "Q")
	out = h.readUntil(t, "73!")
	if !strings.Contains(out, "73!") {
		t.Errorf("farewell missing: %q", out)
	}

	h.waitDone(t)
	if h.registry.Count() != 0 {
		t.Errorf("session not removed from registry")
	}
}

func TestNodeSuppliedCallsign(t *testing.T) {
	cfg := promptedConfig()
	cfg.NodeSuppliedCallsign = true
	cfg.Banner = ""
	h := startSession(t, cfg)

	// The node sends the callsign as the first line, unprompted.
	h.writeLine(t, "KN4XYZ")

	out := h.readUntil(t, "TOTP Code: ")
	if strings.Contains(out, "Callsign: ") {
		t.Errorf("callsign prompt issued in node-supplied mode: %q", out)
	}
	h.writeLine(t, codeAt(t, time.Now()))
	h.readUntil(t, "> ")
}

func TestNodeSuppliedEmptyFallsBackToPrompt(t *testing.T) {
	cfg := promptedConfig()
	cfg.NodeSuppliedCallsign = true
	cfg.Banner = ""
	h := startSession(t, cfg)

	// Empty first line: the node did not send a callsign.
	h.writeLine(t, "")

	h.readUntil(t, "Callsign: ")
	h.writeLine(t, "KN4XYZ")
	h.readUntil(t, "TOTP Code: ")
	h.writeLine(t, codeAt(t, time.Now()))
	h.readUntil(t, "> ")
}

func TestAuthExhaustionClosesConnection(t *testing.T) {
	h := startSession(t, promptedConfig())

	for i := 0; i < 3; i++ {
		h.readUntil(t, "Callsign: ")
		h.writeLine(t, "KN4XYZ")
		h.readUntil(t, "TOTP Code: ")
		h.writeLine(t, "000000")
	}

	out := h.readUntil(t, "Goodbye.")
	if !strings.Contains(out, "Maximum authentication attempts exceeded.") {
		t.Errorf("exhaustion message missing: %q", out)
	}
	h.waitDone(t)
}

func TestWriteRequiresFreshCode(t *testing.T) {
	h := startSession(t, promptedConfig())

	h.readUntil(t, "Callsign: ")
	h.writeLine(t, "KN4XYZ")
	h.readUntil(t, "TOTP Code: ")
	h.writeLine(t, codeAt(t, time.Now()))
	h.readUntil(t, "> ")

	// Snapshot order: light.kitchen=1, switch.heater=2
	h.writeLine(t, "ON 2")
	h.readUntil(t, "TOTP Code: ")
	h.writeLine(t, "999999")

	out := h.readUntil(t, "> ")
	if !strings.Contains(out, auth.MsgInvalid) {
		t.Errorf("denial message missing: %q", out)
	}
	h.provider.mu.Lock()
	calls := h.provider.onCalls
	h.provider.mu.Unlock()
	if calls != 0 {
		t.Errorf("provider called despite failed reauth")
	}

	// A code from the previous time step is still inside the skew and
	// distinct from the login code, so replay protection allows it.
	h.writeLine(t, "ON 2")
	h.readUntil(t, "TOTP Code: ")
	h.writeLine(t, codeAt(t, time.Now().Add(-30*time.Second)))

	out = h.readUntil(t, "> ")
	if !strings.Contains(out, "OK: Heater turned on") {
		t.Errorf("write not executed: %q", out)
	}
	h.provider.mu.Lock()
	calls = h.provider.onCalls
	h.provider.mu.Unlock()
	if calls != 1 {
		t.Errorf("onCalls = %d, want 1", calls)
	}
}

func TestIdleTimeoutExpiresSession(t *testing.T) {
	cfg := promptedConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	h := startSession(t, cfg)

	h.readUntil(t, "Callsign: ")
	h.writeLine(t, "KN4XYZ")
	h.readUntil(t, "TOTP Code: ")
	h.writeLine(t, codeAt(t, time.Now()))
	h.readUntil(t, "> ")

	// Send nothing: the session must expire on its own.
	h.readUntil(t, "Session expired due to inactivity.\r\n")
	h.waitDone(t)
	if h.registry.Count() != 0 {
		t.Errorf("expired session still registered")
	}
}
