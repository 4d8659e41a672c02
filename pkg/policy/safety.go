package policy

import (
	"errors"
	"fmt"

	"github.com/costdesk/costdesk/pkg/models"
)

// Sentinel errors for safety gate violations. The executor stage wraps these
// into a failed run rather than panicking or retrying.
var (
	ErrNotExecutable     = errors.New("approval status does not permit execution")
	ErrCriticalAction    = errors.New("critical-risk action cannot be executed")
	ErrProtectedResource = errors.New("target resource is protected by tags")
)

// EnforceExecutorSafety is the hard gate invoked immediately before any
// action executes, independent of whatever Decide returned earlier. It
// returns a non-nil error when:
//   - the approval status is not approved or auto_approved
//   - any action carries critical risk
//   - any action targets a resource tagged do-not-modify=true or
//     manual-only=true
func EnforceExecutorSafety(
	approval models.ApprovalStatus,
	actions []models.RecommendedAction,
	resourceTagsByARN map[string]map[string]string,
) error {
	if !approval.Executable() {
		return fmt.Errorf("%w: status is %s", ErrNotExecutable, approval)
	}

	for _, a := range actions {
		if a.RiskLevel == models.RiskCritical {
			return fmt.Errorf("%w: %s", ErrCriticalAction, a.ActionID)
		}

		if a.TargetResource == "" {
			continue
		}

		tags, ok := resourceTagsByARN[a.TargetResource]
		if !ok {
			continue
		}

		if tags["do-not-modify"] == "true" || tags["manual-only"] == "true" {
			return fmt.Errorf("%w: %s tags=%v", ErrProtectedResource, a.TargetResource, tags)
		}
	}

	return nil
}
