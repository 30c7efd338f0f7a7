package domain

import "time"

// Tier is a user's subscription level.
type Tier int

const (
	TierFree Tier = iota
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierPremium:
		return "premium"
	}
	return "unknown"
}

// Credential identifies a user's Canvas account: an opaque access token
// plus the base address of the Canvas instance it belongs to.
type Credential struct {
	Token   string
	BaseURL string
}

// Empty reports whether no Canvas account has been linked yet.
func (c Credential) Empty() bool { return c.Token == "" }

// User is a snapshot of a student account.
type User struct {
	ID                int64
	ChatID            int64 // chat-platform identity
	Credential        Credential
	CanvasUserID      string
	CredentialInvalid bool

	Tier         Tier
	PremiumUntil *time.Time // UTC, set while tier is premium

	RemindersEnabled bool

	ManualTasksThisMonth int
	MonthResetAt         time.Time // UTC

	LastSyncAt *time.Time // UTC, nullable
	CreatedAt  time.Time  // UTC
}

// ActivePremium reports whether the user is entitled to premium features
// at the given instant. The stored tier alone is not enough: an expired
// premium row counts as free until the expiry sweep flips it.
func (u User) ActivePremium(now time.Time) bool {
	if u.Tier != TierPremium || u.PremiumUntil == nil {
		return false
	}
	return now.Before(*u.PremiumUntil)
}

// PremiumExpired reports whether the user's stored tier is premium but
// the paid period has already ended.
func (u User) PremiumExpired(now time.Time) bool {
	if u.Tier != TierPremium {
		return false
	}
	return u.PremiumUntil == nil || !now.Before(*u.PremiumUntil)
}

// CanAddManualTask reports whether another manual task may be created
// this month. Premium users are uncapped; free users get freeCap per
// month, where a month "rolls over" 31 days after the last reset.
func (u User) CanAddManualTask(now time.Time, freeCap int) bool {
	if u.ActivePremium(now) {
		return true
	}
	if MonthRolledOver(u.MonthResetAt, now) {
		return freeCap > 0
	}
	return u.ManualTasksThisMonth < freeCap
}

// MonthRolledOver reports whether the monthly counter period that started
// at resetAt has ended by now.
func MonthRolledOver(resetAt, now time.Time) bool {
	return !now.Before(resetAt.Add(31 * 24 * time.Hour))
}

// MonthStart returns the first instant of now's calendar month in UTC,
// used as the reset anchor for the manual-task counter.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
