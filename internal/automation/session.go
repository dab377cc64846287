// File: internal/automation/session.go
package automation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/browser"
	"github.com/xkilldash9x/tokensmith/internal/config"
)

// Credentials is the user input driving one login attempt.
type Credentials struct {
	Email    string
	Password string
}

// state names a position in the login flow. Transitions are strictly
// forward; the machine never revisits a state.
type state string

const (
	stateStart    state = "START"
	stateEmail    state = "EMAIL_ENTRY"
	statePassword state = "PASSWORD_ENTRY"
	stateStatus   state = "STATUS_CHECK"
	statePrompts  state = "PROMPT_RESOLUTION"
	stateCode     state = "CODE_EXTRACTION"
	stateSuccess  state = "SUCCESS"
	stateFailed   state = "FAILED"
)

// Session drives one login attempt through the provider's hosted UI. A
// session exclusively owns its browser instance and is never reused: one
// request, one session, one attempt, no retries.
type Session struct {
	id           string
	driver       browser.Driver
	resolver     *Resolver
	status       *StatusChecker
	prompts      *PromptHandler
	extractor    *Extractor
	cfg          config.AutomationConfig
	redirectPath string
	logger       *zap.Logger

	state       state
	authCode    string
	terminalErr *FlowError
	closeOnce   sync.Once
}

// NewSession wires a session around an already-launched driver. The session
// takes ownership of the driver and closes it when the run ends.
func NewSession(driver browser.Driver, cfg config.AutomationConfig, redirectPath string, logger *zap.Logger) *Session {
	id := uuid.NewString()
	sessionLogger := logger.With(zap.String("session_id", id))

	return &Session{
		id:           id,
		driver:       driver,
		resolver:     NewResolver(driver, sessionLogger),
		status:       NewStatusChecker(driver, cfg, sessionLogger),
		prompts:      NewPromptHandler(driver, NewResolver(driver, sessionLogger), cfg, sessionLogger),
		extractor:    NewExtractor(driver, cfg, sessionLogger),
		cfg:          cfg,
		redirectPath: redirectPath,
		logger:       sessionLogger.Named("session"),
		state:        stateStart,
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// Close releases the browser instance. Safe to call more than once; Run
// already closes on every exit path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.driver.Close(); err != nil {
			s.logger.Warn("Browser close reported an error.", zap.Error(err))
		}
	})
}

// Run executes the full login flow and returns either a non-empty
// authorization code or a terminal error, never both and never neither. The
// browser is closed before Run returns regardless of outcome.
func (s *Session) Run(ctx context.Context, authorizeURL string, creds Credentials) (string, *FlowError) {
	defer s.Close()

	s.logger.Info("Starting login automation.")

	if err := s.driver.Navigate(ctx, authorizeURL); err != nil {
		return s.fail(newAutomationError("opening authorize page", err))
	}

	s.transition(stateEmail)
	if err := s.enterEmail(ctx, creds.Email); err != nil {
		return s.fail(err)
	}

	s.transition(statePassword)
	if err := s.enterPassword(ctx, creds.Password); err != nil {
		return s.fail(err)
	}

	s.transition(stateStatus)
	if c := s.status.Check(ctx); !c.Succeeded() {
		return s.fail(newClassifiedError(c))
	}

	s.transition(statePrompts)
	s.prompts.Resolve(ctx, s.redirectPath)

	s.transition(stateCode)
	code, ferr := s.extractor.Extract(ctx, s.redirectPath)
	if ferr != nil {
		return s.fail(ferr)
	}
	return s.succeed(code)
}

// enterEmail fills the email field and actuates the proceed control.
func (s *Session) enterEmail(ctx context.Context, email string) *FlowError {
	if err := s.driver.Sleep(ctx, s.cfg.SettleDelay); err != nil {
		return newAutomationError("email entry", err)
	}

	selector, err := s.resolver.Resolve(ctx, RoleEmailField, s.cfg.CandidateWait)
	if err != nil {
		return newAutomationError("email entry", err)
	}
	if err := s.driver.Fill(ctx, selector, email); err != nil {
		return newAutomationError("email entry", err)
	}
	s.logger.Info("Email entered.", zap.String("selector", selector))

	return s.proceed(ctx, RoleEmailProceed, s.cfg.SettleDelay)
}

// enterPassword fills the password field and actuates the sign-in control.
// The password field gets a longer wait: it only renders after the provider
// finishes a server round trip on the email.
func (s *Session) enterPassword(ctx context.Context, password string) *FlowError {
	if err := s.driver.Sleep(ctx, s.cfg.SettleDelay); err != nil {
		return newAutomationError("password entry", err)
	}

	selector, err := s.resolver.Resolve(ctx, RolePasswordField, s.cfg.PasswordWait)
	if err != nil {
		return newAutomationError("password entry", err)
	}
	if err := s.driver.Fill(ctx, selector, password); err != nil {
		return newAutomationError("password entry", err)
	}
	s.logger.Info("Password entered.", zap.String("selector", selector))

	return s.proceed(ctx, RoleSignInButton, s.cfg.StatusSettleDelay)
}

// proceed clicks the role's control, or falls back to the Enter key when no
// candidate resolves, then waits for the page to settle.
func (s *Session) proceed(ctx context.Context, role Role, settle time.Duration) *FlowError {
	selector, err := s.resolver.Resolve(ctx, role, 0)
	if err == nil {
		if clickErr := s.driver.Click(ctx, selector); clickErr != nil {
			return newAutomationError(string(role), clickErr)
		}
		s.logger.Info("Clicked proceed control.",
			zap.String("role", string(role)),
			zap.String("selector", selector))
	} else {
		s.logger.Info("No proceed control resolved, falling back to Enter key.",
			zap.String("role", string(role)))
		if enterErr := s.driver.SendEnter(ctx); enterErr != nil {
			return newAutomationError(string(role), enterErr)
		}
	}

	if err := s.driver.Sleep(ctx, settle); err != nil {
		return newAutomationError(string(role), err)
	}
	return nil
}

func (s *Session) transition(next state) {
	s.logger.Debug("State transition.",
		zap.String("from", string(s.state)),
		zap.String("to", string(next)))
	s.state = next
}

func (s *Session) succeed(code string) (string, *FlowError) {
	s.transition(stateSuccess)
	s.authCode = code
	s.logger.Info("Login automation succeeded.")
	return code, nil
}

func (s *Session) fail(ferr *FlowError) (string, *FlowError) {
	s.transition(stateFailed)
	s.terminalErr = ferr
	s.logger.Error("Login automation failed.",
		zap.String("kind", string(ferr.Kind)),
		zap.String("message", ferr.Message))
	return "", ferr
}
