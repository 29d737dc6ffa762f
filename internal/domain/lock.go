package domain

import "time"

// DefaultLockTTL is how long an edit lock stays active unless released.
const DefaultLockTTL = time.Hour

// EntryLock is an advisory, time limited claim of intent to edit an entry.
type EntryLock struct {
	ID          int64      `json:"id"`
	EntryID     int64      `json:"entryId"`
	OwnedBy     string     `json:"ownedBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy *string    `json:"cancelledBy,omitempty"`
}

// Active reports whether the lock still blocks other owners at now.
func (l EntryLock) Active(now time.Time) bool {
	return l.CancelledAt == nil && now.Before(l.ExpiresAt)
}

// OwnedByRequester reports whether owner holds the lock.
func (l EntryLock) OwnedByRequester(owner string) bool {
	return l.OwnedBy == owner
}
