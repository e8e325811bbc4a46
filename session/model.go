package session

import (
	"time"

	"github.com/MrEthical07/goGuard/device"
)

// Status is the derived state of a session.
type Status string

const (
	StatusActive     Status = "active"
	StatusIdle       Status = "idle"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
)

// Termination reasons set by this package.
const (
	ReasonExpired = "expired"
	ReasonLogout  = "logout"
)

// Activity actions.
const (
	ActivityCreated    = "created"
	ActivityTouched    = "touched"
	ActivityTerminated = "terminated"
)

// Activity is one entry of a session's bounded activity trail.
type Activity struct {
	Action    string    `json:"action" bson:"action"`
	At        time.Time `json:"at" bson:"at"`
	IPAddress string    `json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
}

// Session is one login.
type Session struct {
	ID           string `json:"id" bson:"_id"`
	SessionToken string `json:"sessionToken" bson:"sessionToken"`
	UserID       string `json:"userId" bson:"userId"`
	TenantID     string `json:"tenantId" bson:"tenantId"`

	IPAddress  string          `json:"ipAddress" bson:"ipAddress"`
	UserAgent  string          `json:"userAgent" bson:"userAgent"`
	DeviceInfo device.Info     `json:"deviceInfo" bson:"deviceInfo"`
	Location   device.Location `json:"location" bson:"location"`

	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	LastActivity time.Time `json:"lastActivity" bson:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt" bson:"expiresAt"`

	IsActive          bool       `json:"isActive" bson:"isActive"`
	TerminatedBy      string     `json:"terminatedBy,omitempty" bson:"terminatedBy,omitempty"`
	TerminatedAt      *time.Time `json:"terminatedAt,omitempty" bson:"terminatedAt,omitempty"`
	TerminationReason string     `json:"terminationReason,omitempty" bson:"terminationReason,omitempty"`

	SecurityFlags []string   `json:"securityFlags" bson:"securityFlags"`
	Activity      []Activity `json:"activity" bson:"activity"`

	Version int64 `json:"version" bson:"version"`
}

// Status evaluates terminated, expired, idle and active in that order.
// A non-positive idle timeout disables the idle state.
func (s *Session) Status(now time.Time, idleTimeout time.Duration) Status {
	switch {
	case !s.IsActive:
		return StatusTerminated
	case !now.Before(s.ExpiresAt):
		return StatusExpired
	case idleTimeout > 0 && now.Sub(s.LastActivity) >= idleTimeout:
		return StatusIdle
	default:
		return StatusActive
	}
}

// HasFlag reports whether flag is set.
func (s *Session) HasFlag(flag string) bool {
	for _, f := range s.SecurityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag sets flag and reports whether the set changed.
func (s *Session) AddFlag(flag string) bool {
	if s.HasFlag(flag) {
		return false
	}
	s.SecurityFlags = append(s.SecurityFlags, flag)
	return true
}

// RemoveFlag clears flag and reports whether the set changed.
func (s *Session) RemoveFlag(flag string) bool {
	for i, f := range s.SecurityFlags {
		if f == flag {
			s.SecurityFlags = append(s.SecurityFlags[:i:i], s.SecurityFlags[i+1:]...)
			return true
		}
	}
	return false
}

// Terminate marks the session inactive. It reports false, leaving every
// field untouched, when the session was already terminated.
func (s *Session) Terminate(by, reason string, now time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	s.TerminatedBy = by
	s.TerminatedAt = &now
	s.TerminationReason = reason
	return true
}

func (s *Session) appendActivity(a Activity, max int) {
	s.Activity = append(s.Activity, a)
	if max > 0 && len(s.Activity) > max {
		s.Activity = append([]Activity(nil), s.Activity[len(s.Activity)-max:]...)
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.SecurityFlags = append([]string(nil), s.SecurityFlags...)
	out.Activity = append([]Activity(nil), s.Activity...)
	if s.TerminatedAt != nil {
		t := *s.TerminatedAt
		out.TerminatedAt = &t
	}
	out.Location = cloneLocation(s.Location)
	return &out
}

func cloneLocation(l device.Location) device.Location {
	if l.Latitude != nil {
		v := *l.Latitude
		l.Latitude = &v
	}
	if l.Longitude != nil {
		v := *l.Longitude
		l.Longitude = &v
	}
	return l
}
