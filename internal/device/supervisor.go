package device

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/tokencore/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidEndOfSessionPolicy = errors.New("device: invalid end-of-session policy")
	ErrInitAttemptsExhausted     = errors.New("device: link init attempts exhausted")
)

// EndOfSessionPolicy controls what the supervisor does when the loop
// returns because the receiver ended the session.
type EndOfSessionPolicy string

const (
	EndOfSessionExit    EndOfSessionPolicy = "exit"
	EndOfSessionRestart EndOfSessionPolicy = "restart"
)

func ParseEndOfSessionPolicy(raw string) (EndOfSessionPolicy, error) {
	switch p := EndOfSessionPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return EndOfSessionExit, nil
	case EndOfSessionExit, EndOfSessionRestart:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEndOfSessionPolicy, raw)
	}
}

// SupervisorConfig configures the outer restart loop.
type SupervisorConfig struct {
	EndOfSession EndOfSessionPolicy
	Backoff      transport.BackoffConfig
	// MaxInitAttempts bounds consecutive link init resets; 0 retries forever.
	MaxInitAttempts int
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		EndOfSession: EndOfSessionExit,
		Backoff:      transport.DefaultBackoffConfig(),
	}
}

// Status is a point-in-time view of the supervisor for admin surfaces.
type Status struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Cycles    uint64    `json:"cycles"`
	Restarts  uint64    `json:"restarts"`
	StartedAt time.Time `json:"started_at"`
	LastExit  string    `json:"last_exit,omitempty"`
}

// Supervisor owns the link and platform lifecycle around a Loop.
type Supervisor struct {
	link     transport.Link
	loop     *Loop
	platform Platform
	cfg      SupervisorConfig
	rng      *rand.Rand

	mu        sync.RWMutex
	sessionID string
	cycles    uint64
	restarts  uint64
	startedAt time.Time
	lastExit  ExitReason
}

// Supervisor constructor; a nil platform falls back to ConsolePlatform.
func NewSupervisor(link transport.Link, loop *Loop, platform Platform, cfg SupervisorConfig) *Supervisor {
	if platform == nil {
		platform = ConsolePlatform{}
	}
	if cfg.EndOfSession == "" {
		cfg.EndOfSession = EndOfSessionExit
	}
	return &Supervisor{
		link:     link,
		loop:     loop,
		platform: platform,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until the application exits. Resets re-enter the loop
// indefinitely; a fatal exit returns its error.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.exitApp(ctx)
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	for {
		sessionID := s.beginCycle()
		if err := s.initCycle(ctx); err != nil {
			if errors.Is(err, transport.ErrEndOfSession) {
				log.Info().Str("session", sessionID).Msg("device.Supervisor.Run session ended during init")
				return nil
			}
			return err
		}

		log.Info().Str("session", sessionID).Msg("device.Supervisor.Run loop entered")
		exit := s.loop.Run(ctx)
		s.recordExit(exit.Reason)

		switch exit.Reason {
		case ExitReset:
			s.mu.Lock()
			s.restarts++
			s.mu.Unlock()
			log.Warn().Str("session", sessionID).Err(exit.Err).Msg("device.Supervisor.Run reset; reinitialising")
		case ExitFatal:
			log.Error().Str("session", sessionID).Err(exit.Err).Msg("device.Supervisor.Run fatal; exiting")
			return exit.Err
		default:
			if s.cfg.EndOfSession == EndOfSessionRestart && ctx.Err() == nil {
				log.Info().Str("session", sessionID).Msg("device.Supervisor.Run end of session; re-entering")
				continue
			}
			log.Info().Str("session", sessionID).Msg("device.Supervisor.Run end of session; exiting")
			return nil
		}
	}
}

// Status returns the supervisor's current view.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		SessionID: s.sessionID,
		State:     s.loop.State().String(),
		Cycles:    s.cycles,
		Restarts:  s.restarts,
		StartedAt: s.startedAt,
	}
	if s.lastExit != 0 {
		st.LastExit = s.lastExit.String()
	}
	return st
}

func (s *Supervisor) beginCycle() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessionID = id
	s.cycles++
	s.mu.Unlock()
	return id
}

func (s *Supervisor) recordExit(reason ExitReason) {
	s.mu.Lock()
	s.lastExit = reason
	s.mu.Unlock()
}

// initCycle power-cycles the link, retrying resets with backoff, then
// brings the UI up.
func (s *Supervisor) initCycle(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := s.link.Init(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil || errors.Is(err, transport.ErrEndOfSession) {
			return transport.ErrEndOfSession
		}
		if !errors.Is(err, transport.ErrReset) {
			return fmt.Errorf("device: link init: %w", err)
		}
		if s.cfg.MaxInitAttempts > 0 && attempt >= s.cfg.MaxInitAttempts {
			return fmt.Errorf("%w: %d attempts: %v", ErrInitAttemptsExhausted, attempt, err)
		}
		log.Warn().Int("attempt", attempt).Err(err).Msg("device.Supervisor.initCycle link init reset; backing off")
		if werr := transport.WaitBackoff(ctx, s.cfg.Backoff, attempt, s.rng); werr != nil {
			return transport.ErrEndOfSession
		}
	}
	if err := s.platform.InitUI(ctx); err != nil {
		return fmt.Errorf("device: init ui: %w", err)
	}
	return nil
}

// exitApp hands control back to the platform. Teardown failures, including
// panics, are logged and dropped.
func (s *Supervisor) exitApp(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("device.Supervisor.exitApp platform exit panicked")
		}
	}()
	if err := s.platform.Exit(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("device.Supervisor.exitApp platform exit failed")
	}
}
