package services

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/edulab/quiz-engine/internal/models"
)

// AccessGuard bundles the per-operation checks every write-session call runs
// through. It decides nothing about expiry scoring; it only classifies the
// request (allowed, forbidden, or allowed-but-expired).
type AccessGuard struct {
	authz AuthorizationPort
}

func NewAccessGuard(authz AuthorizationPort) *AccessGuard {
	return &AccessGuard{authz: authz}
}

// CheckOwnership allows the owning student, and instructors/admins holding a
// management capability over the owning group.
func (g *AccessGuard) CheckOwnership(ctx context.Context, instance *models.TestInstance, test *models.Test, callerID string) error {
	if instance.UserID == callerID {
		return nil
	}

	canManage, err := g.authz.CanManageGroup(ctx, callerID, test.GroupID)
	if err != nil {
		return err
	}
	if !canManage {
		return NewPermissionError(callerID, instance.ID, "test_instance", "access", "not owned by caller")
	}
	return nil
}

// CheckWindowOpen rejects requests before the availability window opens.
// Requests after it closes are not rejected here: a student mid-write when
// the window closes must still be able to submit, so lateness is reported as
// expired and handled by the write session's expiry policy.
func (g *AccessGuard) CheckWindowOpen(test *models.Test, now time.Time) error {
	if now.Before(test.AvailableFrom) {
		return ErrTestNotYetOpen
	}
	return nil
}

// IsExpired reports whether now is past the hard cutoff: the earlier of the
// availability window end and startTime+duration (when a start is recorded).
func (g *AccessGuard) IsExpired(test *models.Test, instance *models.TestInstance, now time.Time) bool {
	cutoff := test.AvailableUntil
	if instance.StartTime != nil {
		deadline := instance.StartTime.Add(time.Duration(test.DurationSeconds) * time.Second)
		if deadline.Before(cutoff) {
			cutoff = deadline
		}
	}
	return now.After(cutoff)
}

// CheckNotSubmitted enforces the write-once rule.
func (g *AccessGuard) CheckNotSubmitted(instance *models.TestInstance) error {
	if instance.Submitted {
		return ErrAlreadySubmitted
	}
	return nil
}

// CheckPassword compares the supplied password in constant time. Tests
// without a password accept any supplied value.
func (g *AccessGuard) CheckPassword(test *models.Test, supplied *string) error {
	if !test.HasPassword() {
		return nil
	}

	var given string
	if supplied != nil {
		given = *supplied
	}

	if subtle.ConstantTimeCompare([]byte(*test.Password), []byte(given)) != 1 {
		return ErrWrongPassword
	}
	return nil
}
