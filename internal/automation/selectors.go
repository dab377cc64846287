// File: internal/automation/selectors.go
package automation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/browser"
)

// Role names a logical UI element the login flow needs to act on. Each role
// carries an ordered candidate list; ordering encodes preference, with the
// most stable selectors first and localized text fallbacks last.
type Role string

const (
	RoleEmailField    Role = "email field"
	RoleEmailProceed  Role = "next button"
	RolePasswordField Role = "password field"
	RoleSignInButton  Role = "sign in button"
	RoleConsentAccept Role = "consent accept button"
	RoleStaySignedIn  Role = "stay signed in button"
)

// The provider renders its login pages with markup that shifts between
// tenants and locales. Each list covers the semantic attribute, the stable
// element id, and localized button text (English plus Italian, the other
// locale observed in production). XPath candidates handle the text matches.
var roleCandidates = map[Role][]string{
	RoleEmailField: {
		`input[type="email"]`,
		`#i0116`,
		`input[name="loginfmt"]`,
		`input[placeholder*="email" i]`,
		`input[placeholder*="Email" i]`,
	},
	RoleEmailProceed: {
		`#idSIButton9`,
		`input[type="submit"]`,
		`button[type="submit"]`,
		`//button[contains(text(), "Next")]`,
		`//button[contains(text(), "Avanti")]`,
	},
	RolePasswordField: {
		`input[type="password"]`,
		`#i0118`,
		`input[name="passwd"]`,
		`input[name="Password"]`,
		`input[placeholder*="password" i]`,
	},
	RoleSignInButton: {
		`#idSIButton9`,
		`input[type="submit"]`,
		`button[type="submit"]`,
		`//button[contains(text(), "Sign in")]`,
		`//button[contains(text(), "Accedi")]`,
	},
	RoleConsentAccept: {
		`#idSIButton9`,
		`//button[contains(text(), "Accept")]`,
		`//button[contains(text(), "Allow")]`,
		`//button[contains(text(), "Accetta")]`,
		`input[type="submit"][value*="Accept"]`,
	},
	RoleStaySignedIn: {
		`#idSIButton9`,
		`//button[contains(text(), "Yes")]`,
		`//button[contains(text(), "Sì")]`,
		`input[type="submit"][value*="Yes"]`,
	},
}

// Candidates returns the ordered selector list for a role.
func Candidates(role Role) []string {
	return roleCandidates[role]
}

// Resolver picks a working selector for a role from its candidate list. It
// is the flow's defense against markup drift: a candidate that errors or is
// not actionable is skipped, never fatal on its own.
type Resolver struct {
	driver browser.Driver
	logger *zap.Logger
}

// NewResolver creates a resolver bound to one browser session.
func NewResolver(driver browser.Driver, logger *zap.Logger) *Resolver {
	return &Resolver{driver: driver, logger: logger.Named("resolver")}
}

// Resolve walks the role's candidates in order and returns the first
// selector whose element is currently visible and enabled. When wait is
// positive, each candidate is given that long to become visible before it is
// checked; with zero wait the current DOM state is taken as-is.
func (r *Resolver) Resolve(ctx context.Context, role Role, wait time.Duration) (string, error) {
	candidates := roleCandidates[role]

	for _, selector := range candidates {
		if wait > 0 {
			if err := r.driver.WaitVisible(ctx, selector, wait); err != nil {
				r.logger.Debug("Candidate did not appear.",
					zap.String("role", string(role)),
					zap.String("selector", selector),
					zap.Error(err))
				continue
			}
		}

		el, found, err := r.driver.Query(ctx, selector)
		if err != nil {
			r.logger.Debug("Candidate lookup failed.",
				zap.String("role", string(role)),
				zap.String("selector", selector),
				zap.Error(err))
			continue
		}
		if !found || !el.Actionable() {
			continue
		}

		r.logger.Debug("Resolved element.",
			zap.String("role", string(role)),
			zap.String("selector", selector))
		return selector, nil
	}

	return "", &ElementNotFoundError{Role: role, Candidates: candidates}
}
