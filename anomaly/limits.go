package anomaly

import "fmt"

// Limit kinds.
const (
	LimitActivePerUser = "active_sessions_per_user"
	LimitTotalPerUser  = "total_sessions_per_user"
	LimitActivePerIP   = "active_sessions_per_ip"
)

// Limits are session ceilings. Zero means unlimited.
type Limits struct {
	MaxActivePerUser int
	MaxTotalPerUser  int
	MaxActivePerIP   int
}

// Counts are the live numbers compared against Limits.
type Counts struct {
	ActiveForUser int64
	TotalForUser  int64
	ActiveForIP   int64
}

// LimitViolation describes the first ceiling reached.
type LimitViolation struct {
	Kind    string
	Limit   int
	Current int64
}

func (v *LimitViolation) String() string {
	return fmt.Sprintf("%s: %d of %d", v.Kind, v.Current, v.Limit)
}

// CheckLimits returns the first ceiling that admitting one more session would
// exceed, or nil.
func CheckLimits(c Counts, l Limits) *LimitViolation {
	checks := []struct {
		kind    string
		limit   int
		current int64
	}{
		{LimitActivePerUser, l.MaxActivePerUser, c.ActiveForUser},
		{LimitTotalPerUser, l.MaxTotalPerUser, c.TotalForUser},
		{LimitActivePerIP, l.MaxActivePerIP, c.ActiveForIP},
	}
	for _, ch := range checks {
		if ch.limit > 0 && ch.current >= int64(ch.limit) {
			return &LimitViolation{Kind: ch.kind, Limit: ch.limit, Current: ch.current}
		}
	}
	return nil
}

// Unlimited reports whether every ceiling is disabled.
func (l Limits) Unlimited() bool {
	return l.MaxActivePerUser <= 0 && l.MaxTotalPerUser <= 0 && l.MaxActivePerIP <= 0
}
