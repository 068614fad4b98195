package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrNotLoggedIn means the portal showed a login page and no credentials are configured
	ErrNotLoggedIn = errors.New("portal session is not logged in")
	// ErrLoginFailed means the portal did not reach the dashboard after submitting credentials
	ErrLoginFailed = errors.New("portal login did not reach the dashboard")
	// ErrSearchInputNotFound means the search shortcut did not focus a text input
	ErrSearchInputNotFound = errors.New("portal search input not found")
)

// Lookup steps reported in LookupError
const (
	StepSession  = "session"
	StepNavigate = "navigate"
	StepLogin    = "login"
	StepSearch   = "search"
	StepOpen     = "open_result"
	StepRead     = "read_page"
)

const (
	dashboardMarker      = "/dashboard"
	loginEmailSelector   = `input[type="email"], input[name="username"]`
	loginPassSelector    = `input[type="password"]`
	searchInputSelector  = `input[type="text"]`
	searchShortcut       = "/"
	defaultPortalTimeout = 30 * time.Second
)

// LookupError records which step of a portal lookup failed
type LookupError struct {
	Step string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("portal lookup failed at %s: %v", e.Step, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// SessionProvider runs a function with a scoped browser session
type SessionProvider interface {
	WithSession(ctx context.Context, fn func(Session) error) error
}

// Delays are the pauses the portal needs between interactions
type Delays struct {
	AfterLogin        time.Duration
	AfterShortcut     time.Duration
	AfterTyping       time.Duration
	AfterOpen         time.Duration
	LoginFieldWait    time.Duration
	PasswordFieldWait time.Duration
	ResultClickWait   time.Duration
}

// DefaultDelays returns the pacing the portal UI is known to need
func DefaultDelays() Delays {
	return Delays{
		AfterLogin:        8 * time.Second,
		AfterShortcut:     2 * time.Second,
		AfterTyping:       4 * time.Second,
		AfterOpen:         6 * time.Second,
		LoginFieldWait:    10 * time.Second,
		PasswordFieldWait: 5 * time.Second,
		ResultClickWait:   5 * time.Second,
	}
}

// PortalConfig configures a Portal
type PortalConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Delays   *Delays
	Logger   *slog.Logger
}

// Portal looks loads up in the QuoteFactory web app and returns the page text
type Portal struct {
	sessions SessionProvider
	url      string
	username string
	password string
	timeout  time.Duration
	delays   Delays
	logger   *slog.Logger
}

// NewPortal creates a portal lookup over the given sessions
func NewPortal(sessions SessionProvider, config *PortalConfig) *Portal {
	if config == nil {
		config = &PortalConfig{}
	}

	p := &Portal{
		sessions: sessions,
		url:      config.URL,
		username: config.Username,
		password: config.Password,
		timeout:  config.Timeout,
		delays:   DefaultDelays(),
		logger:   config.Logger,
	}
	if config.Delays != nil {
		p.delays = *config.Delays
	}
	if p.timeout <= 0 {
		p.timeout = defaultPortalTimeout
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// Lookup opens the load matching reference and returns the text of its page.
// Failures are returned as *LookupError.
func (p *Portal) Lookup(ctx context.Context, reference string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	var pageText string

	err := p.sessions.WithSession(ctx, func(s Session) error {
		if err := p.ensureLoggedIn(s); err != nil {
			return err
		}
		if err := p.openLoad(s, reference); err != nil {
			return err
		}

		text, err := s.PageText()
		if err != nil {
			return &LookupError{Step: StepRead, Err: err}
		}
		pageText = text
		return nil
	})
	if err != nil {
		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) {
			err = &LookupError{Step: StepSession, Err: err}
		}
		p.logger.Warn("Portal lookup failed", "reference", reference, "error", err,
			"duration", time.Since(start))
		return "", err
	}

	p.logger.Info("Portal lookup complete", "reference", reference, "page_chars", len(pageText),
		"duration", time.Since(start))
	return pageText, nil
}

func (p *Portal) ensureLoggedIn(s Session) error {
	if err := s.Navigate(p.url); err != nil {
		return &LookupError{Step: StepNavigate, Err: err}
	}

	current, err := s.URL()
	if err != nil {
		return &LookupError{Step: StepNavigate, Err: err}
	}
	if strings.Contains(current, dashboardMarker) {
		p.logger.Debug("Portal session already on dashboard", "url", current)
		return nil
	}

	if p.username == "" || p.password == "" {
		return &LookupError{Step: StepLogin, Err: ErrNotLoggedIn}
	}

	p.logger.Debug("Logging in to portal", "url", current)
	if err := s.WaitVisible(loginEmailSelector, p.delays.LoginFieldWait); err != nil {
		return &LookupError{Step: StepLogin, Err: fmt.Errorf("email field: %w", err)}
	}
	if err := s.WaitVisible(loginPassSelector, p.delays.PasswordFieldWait); err != nil {
		return &LookupError{Step: StepLogin, Err: fmt.Errorf("password field: %w", err)}
	}
	if err := s.Fill(loginEmailSelector, p.username); err != nil {
		return &LookupError{Step: StepLogin, Err: err}
	}
	if err := s.Fill(loginPassSelector, p.password); err != nil {
		return &LookupError{Step: StepLogin, Err: err}
	}
	if err := s.Press(KeyEnter); err != nil {
		return &LookupError{Step: StepLogin, Err: err}
	}
	if err := s.Sleep(p.delays.AfterLogin); err != nil {
		return &LookupError{Step: StepLogin, Err: err}
	}

	current, err = s.URL()
	if err != nil {
		return &LookupError{Step: StepLogin, Err: err}
	}
	if !strings.Contains(current, dashboardMarker) {
		return &LookupError{Step: StepLogin, Err: fmt.Errorf("%w: landed on %s", ErrLoginFailed, current)}
	}
	return nil
}

func (p *Portal) openLoad(s Session, reference string) error {
	if err := s.Press(searchShortcut); err != nil {
		return &LookupError{Step: StepSearch, Err: err}
	}
	if err := s.Sleep(p.delays.AfterShortcut); err != nil {
		return &LookupError{Step: StepSearch, Err: err}
	}

	found, err := s.FillFocused(searchInputSelector, reference)
	if err != nil {
		return &LookupError{Step: StepSearch, Err: err}
	}
	if !found {
		return &LookupError{Step: StepSearch, Err: ErrSearchInputNotFound}
	}
	if err := s.Sleep(p.delays.AfterTyping); err != nil {
		return &LookupError{Step: StepSearch, Err: err}
	}

	// Prefer the matching result; Enter opens the top hit otherwise
	if err := s.ClickText(reference, p.delays.ResultClickWait); err != nil {
		p.logger.Debug("Search result not clickable, pressing Enter", "reference", reference, "error", err)
		if err := s.Press(KeyEnter); err != nil {
			return &LookupError{Step: StepOpen, Err: err}
		}
	}
	if err := s.Sleep(p.delays.AfterOpen); err != nil {
		return &LookupError{Step: StepOpen, Err: err}
	}
	return nil
}
