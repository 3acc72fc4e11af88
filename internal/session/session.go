// Package session owns the single authenticated portal context and the
// login / second-factor state machine around it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrLoginFailed          = errors.New("login failed")
	ErrSecondFactorTimeout  = errors.New("second factor approval timed out")
	ErrSecondFactorRejected = errors.New("second factor approval rejected")
	ErrNotAuthenticated     = errors.New("session is not authenticated")
	ErrInvalidTransition    = errors.New("invalid session transition")
)

// Phase tags the variant held in State
type Phase int

const (
	LoggedOut Phase = iota
	AwaitingFactor
	Authenticated
	Failed
)

func (p Phase) String() string {
	switch p {
	case AwaitingFactor:
		return "awaiting_factor"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "logged_out"
	}
}

// State is the session's current variant. Deadline is set only while
// AwaitingFactor; Reason only when Failed.
type State struct {
	Phase    Phase
	Deadline time.Time
	Reason   error
}

// Outcome is the result of the bounded approval wait
type Outcome int

const (
	Approved Outcome = iota
	TimedOut
	Rejected
)

// Options tunes the approval wait
type Options struct {
	ApprovalTimeout time.Duration
	PollInterval    time.Duration
	// OnWait is called before each sleep with the time left until the deadline
	OnWait func(remaining time.Duration)
}

// Session drives a portal.Client through login. It is not safe for concurrent
// use; one run owns one Session.
type Session struct {
	client portal.Client
	clock  clock.Clock
	opts   Options
	log    logrus.FieldLogger
	state  State
}

// New returns a LoggedOut session over client
func New(client portal.Client, c clock.Clock, opts Options, log logrus.FieldLogger) *Session {
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{client: client, clock: c, opts: opts, log: log.WithField("component", "session")}
}

// State returns a copy of the current state
func (s *Session) State() State {
	return s.state
}

// Reset returns a Failed session to LoggedOut so login can be attempted again
func (s *Session) Reset() {
	if s.state.Phase == Failed {
		s.state = State{Phase: LoggedOut}
	}
}

// Authenticate submits cred and waits for the second factor. It must start
// from LoggedOut; an already authenticated session is returned as is.
func (s *Session) Authenticate(ctx context.Context, cred models.Credential) (State, error) {
	switch s.state.Phase {
	case Authenticated:
		return s.state, nil
	case LoggedOut:
	default:
		return s.state, fmt.Errorf("%w: authenticate from %s", ErrInvalidTransition, s.state.Phase)
	}

	s.log.WithField("username", cred.Username).Info("logging in")
	if err := s.client.SubmitCredentials(ctx, cred); err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}

	s.state = State{Phase: AwaitingFactor, Deadline: s.clock.Now().Add(s.opts.ApprovalTimeout)}
	s.log.WithField("timeout", s.opts.ApprovalTimeout).Info("waiting for second factor approval")

	outcome, err := s.waitForApproval(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	switch outcome {
	case TimedOut:
		return s.fail(ErrSecondFactorTimeout)
	case Rejected:
		return s.fail(ErrSecondFactorRejected)
	}

	s.state = State{Phase: Authenticated}
	s.log.Info("authenticated")
	return s.state, nil
}

// waitForApproval polls until the probe reports an outcome or the deadline
// passes. Errors are probe or cancellation failures.
func (s *Session) waitForApproval(ctx context.Context) (Outcome, error) {
	deadline := s.state.Deadline
	for {
		if err := ctx.Err(); err != nil {
			return TimedOut, err
		}

		approval, err := s.client.CheckApproval(ctx)
		if err != nil {
			return TimedOut, err
		}
		switch approval {
		case portal.ApprovalApproved:
			return Approved, nil
		case portal.ApprovalRejected:
			return Rejected, nil
		}

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return TimedOut, nil
		}
		if s.opts.OnWait != nil {
			s.opts.OnWait(remaining)
		}

		wait := s.opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return TimedOut, err
		}
	}
}

func (s *Session) fail(reason error) (State, error) {
	s.state = State{Phase: Failed, Reason: reason}
	s.log.WithError(reason).Warn("session failed")
	return s.state, reason
}

// WithSession runs fn with the authenticated client. It fails fast when the
// session is not authenticated.
func (s *Session) WithSession(ctx context.Context, fn func(ctx context.Context, client portal.Client) error) error {
	if s.state.Phase != Authenticated {
		return fmt.Errorf("%w (state %s)", ErrNotAuthenticated, s.state.Phase)
	}
	return fn(ctx, s.client)
}
