package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/qthlink/qthlink/internal/audit"
	"github.com/qthlink/qthlink/internal/auth"
	"github.com/qthlink/qthlink/internal/command"
	"github.com/qthlink/qthlink/internal/format"
)

// authReadTimeout bounds how long a caller gets to answer an identity
// or code prompt. Shorter than the idle timeout so a silent connection
// cannot hold an auth prompt open for the full session budget.
const authReadTimeout = 60 * time.Second

var errIdle = errors.New("idle timeout")

// Config is the per-connection protocol policy.
type Config struct {
	Banner string

	// NodeSuppliedCallsign accepts the first line as the caller's
	// identity without prompting, for gateway nodes that auto-send it.
	// An empty first line falls back to the prompted flow once.
	NodeSuppliedCallsign bool

	MaxAuthAttempts int
	IdleTimeout     time.Duration

	// LinesPerSecond throttles command input once authenticated. Zero
	// disables the throttle. A packet node feeding a script can flood
	// the gateway otherwise.
	LinesPerSecond float64
	LineBurst      int
}

// Session drives one connection through the protocol states:
// banner, identify, authenticate, command loop, close.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config

	auth       *auth.Authenticator
	registry   *Registry
	dispatcher *command.Dispatcher
	audit      *audit.Logger
	log        zerolog.Logger
	limiter    *rate.Limiter

	id       string
	callsign string
}

// New wraps an accepted connection in a session.
func New(conn net.Conn, cfg Config, authenticator *auth.Authenticator, registry *Registry, dispatcher *command.Dispatcher, auditLog *audit.Logger, log zerolog.Logger) *Session {
	if cfg.MaxAuthAttempts < 1 {
		cfg.MaxAuthAttempts = 3
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	var limiter *rate.Limiter
	if cfg.LinesPerSecond > 0 {
		burst := cfg.LineBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.LinesPerSecond), burst)
	}
	return &Session{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		cfg:        cfg,
		auth:       authenticator,
		registry:   registry,
		dispatcher: dispatcher,
		audit:      auditLog,
		log:        log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		limiter:    limiter,
	}
}

// Run executes the full session. It returns when the session reaches
// its terminal state; the connection is closed on the way out. Context
// cancellation (global shutdown) unwinds any blocked read.
func (s *Session) Run(ctx context.Context) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()
	defer s.close()

	if s.cfg.Banner != "" {
		for _, line := range strings.Split(s.cfg.Banner, "\n") {
			s.send(line)
		}
		s.send("")
	}

	if !s.authenticate(ctx) {
		s.send("Authentication failed. Goodbye.")
		return
	}

	s.commandLoop(ctx)
}

// authenticate runs the identify/authenticate states. On success the
// session is registered and s.id/s.callsign are set.
func (s *Session) authenticate(ctx context.Context) bool {
	remote := s.conn.RemoteAddr().String()

	for attempt := 1; attempt <= s.cfg.MaxAuthAttempts; attempt++ {
		callsign, err := s.identify(attempt)
		if err != nil {
			return false
		}
		if callsign == "" {
			s.send("Callsign required.")
			continue
		}

		code, err := s.readLine("TOTP Code: ", authReadTimeout)
		if err != nil {
			s.log.Info().Str("callsign", callsign).Msg("authentication aborted")
			return false
		}
		code = strings.TrimSpace(code)
		if len(code) != 6 || !allDigits(code) {
			s.send("Invalid code format (must be 6 digits).")
			continue
		}

		ok, msg := s.auth.Verify(callsign, code)
		if ok {
			s.callsign = strings.ToUpper(callsign)
			s.id = s.registry.Register(s.callsign, remote)
			s.audit.Log(audit.EventAuthSuccess, s.callsign, s.id, remote, nil)
			s.audit.Log(audit.EventSessionStart, s.callsign, s.id, remote, nil)
			s.log.Info().Str("callsign", s.callsign).Str("session_id", s.id).Msg("authenticated")

			s.send("")
			s.send("Welcome " + s.callsign + "!")
			s.send("Type H for help")
			s.send("")
			return true
		}

		event := audit.EventAuthFailure
		if msg == auth.MsgRateLimited {
			event = audit.EventRateLimited
		}
		s.audit.Log(event, strings.ToUpper(callsign), "", remote, map[string]any{"attempt": attempt})
		s.log.Warn().Str("callsign", callsign).Int("attempt", attempt).Msg("authentication failed")

		s.send(msg)
		if attempt < s.cfg.MaxAuthAttempts {
			s.sendf("Try again (%d attempts remaining).", s.cfg.MaxAuthAttempts-attempt)
			s.send("")
		}
	}

	s.send("Maximum authentication attempts exceeded.")
	return false
}

// identify reads the claimed callsign. In node-supplied mode the first
// line arrives unprompted; an empty line there falls back to the
// prompted flow for the rest of the connection.
func (s *Session) identify(attempt int) (string, error) {
	if s.cfg.NodeSuppliedCallsign && attempt == 1 {
		line, err := s.readLine("", authReadTimeout)
		if err != nil {
			return "", err
		}
		if cs := strings.TrimSpace(line); cs != "" {
			return cs, nil
		}
		s.log.Debug().Msg("no node-supplied callsign, falling back to prompt")
	}
	line, err := s.readLine("Callsign: ", authReadTimeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) commandLoop(ctx context.Context) {
	remote := s.conn.RemoteAddr().String()

	for {
		line, err := s.readLine("> ", s.cfg.IdleTimeout)
		if ctx.Err() != nil {
			// Global shutdown, not caller inactivity.
			s.send(format.Farewell)
			return
		}
		if errors.Is(err, errIdle) {
			s.send("Session expired due to inactivity.")
			s.audit.Log(audit.EventSessionExpired, s.callsign, s.id, remote, nil)
			s.log.Info().Str("callsign", s.callsign).Msg("session expired")
			return
		}
		if err != nil {
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.registry.Touch(s.id)
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		cmd, perr := command.Parse(line)
		if perr != nil {
			s.sendAll(perr.Lines())
			continue
		}

		s.audit.Log(audit.EventCommand, s.callsign, s.id, remote, map[string]any{"command": cmd.Kind.String()})

		if cmd.Kind == command.KindQuit {
			s.send(format.Farewell)
			return
		}

		if cmd.Kind.Write() {
			if !s.reauthenticate(cmd) {
				continue
			}
		}

		s.sendAll(s.dispatcher.Dispatch(ctx, cmd))

		if cmd.Kind.Write() {
			s.audit.Log(audit.EventWriteExecuted, s.callsign, s.id, remote, map[string]any{
				"command": cmd.Kind.String(), "id": cmd.ID,
			})
		}
	}
}

// reauthenticate demands a fresh code before a write command. A failure
// denies only the pending write; the session stays valid.
func (s *Session) reauthenticate(cmd command.Command) bool {
	remote := s.conn.RemoteAddr().String()

	s.send("")
	code, err := s.readLine("TOTP Code: ", authReadTimeout)
	if err != nil {
		s.send("Operation cancelled.")
		return false
	}
	code = strings.TrimSpace(code)
	if len(code) != 6 || !allDigits(code) {
		s.send("Invalid code format (must be 6 digits).")
		s.send("")
		return false
	}

	ok, msg := s.auth.Verify(s.callsign, code)
	if !ok {
		s.audit.Log(audit.EventWriteDenied, s.callsign, s.id, remote, map[string]any{
			"command": cmd.Kind.String(), "id": cmd.ID,
		})
		s.log.Warn().Str("callsign", s.callsign).Str("command", cmd.Kind.String()).Msg("write denied")
		s.send(msg)
		s.send("")
		return false
	}
	return true
}

func (s *Session) close() {
	if s.id != "" {
		s.registry.Remove(s.id)
		s.audit.Log(audit.EventSessionEnd, s.callsign, s.id, s.conn.RemoteAddr().String(), nil)
	}
	s.conn.Close()
	s.log.Info().Str("callsign", s.callsign).Msg("connection closed")
}

// readLine shows an optional prompt and reads one CRLF/LF line. A read
// deadline enforces the timeout; hitting it returns errIdle.
func (s *Session) readLine(prompt string, timeout time.Duration) (string, error) {
	if prompt != "" {
		if _, err := io.WriteString(s.conn, prompt); err != nil {
			return "", err
		}
	}
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := s.reader.ReadString('\n')
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "", errIdle
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Session) send(line string) {
	io.WriteString(s.conn, line+"\r\n")
}

func (s *Session) sendf(formatStr string, args ...any) {
	s.send(fmt.Sprintf(formatStr, args...))
}

func (s *Session) sendAll(lines []string) {
	for _, line := range lines {
		s.send(line)
	}
}

func allDigits(code string) bool {
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
