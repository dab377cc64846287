// File: internal/automation/automation_test.go
package automation

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/xkilldash9x/tokensmith/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testAutomationConfig compresses every wait so flow tests run in
// milliseconds while keeping the same control flow as production timings.
func testAutomationConfig() config.AutomationConfig {
	return config.AutomationConfig{
		SettleDelay:       time.Millisecond,
		StatusSettleDelay: time.Millisecond,
		CandidateWait:     5 * time.Millisecond,
		PasswordWait:      5 * time.Millisecond,
		ExtractInterval:   time.Millisecond,
		ExtractTimeout:    50 * time.Millisecond,
		MaxPromptAttempts: 3,
	}
}
