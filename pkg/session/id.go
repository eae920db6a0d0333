package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionIDPrefix     = "s"
	sessionIDTimeLayout = "20060102-150405"
)

// NewSessionID mints an identifier embedding the creation instant, e.g.
// "s-20260823-091500-1a2b3c4d". The embedded stamp uses local time so
// "is this session from today" matches the user's day.
func NewSessionID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", sessionIDPrefix, at.Local().Format(sessionIDTimeLayout), suffix)
}

// ParseSessionID extracts the creation instant embedded in an identifier.
func ParseSessionID(id string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(id), "-")
	if len(parts) != 4 || parts[0] != sessionIDPrefix {
		return time.Time{}, fmt.Errorf("malformed session id %q", id)
	}
	at, err := time.ParseInLocation(sessionIDTimeLayout, parts[1]+"-"+parts[2], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session id timestamp: %w", err)
	}
	return at, nil
}

// sameLocalDay reports whether two instants fall on the same device-local
// calendar day.
func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
