package domain

import (
	"sort"
	"strings"
)

// Right names a single boolean capability granted to the signed-in user.
type Right string

const (
	// RightCanDonate allows the user to record new donations.
	RightCanDonate Right = "canDonate"
	// RightCanViewHistory allows the user to browse donation history and reports.
	RightCanViewHistory Right = "canViewHistory"
	// RightCanViewNotification allows the user to read notifications.
	RightCanViewNotification Right = "canViewNotification"
)

// KnownRights lists every right the backend reports, in stable order.
func KnownRights() []Right {
	return []Right{RightCanDonate, RightCanViewHistory, RightCanViewNotification}
}

// ParseRight resolves a wire name into a known right.
func ParseRight(name string) (Right, bool) {
	name = strings.TrimSpace(name)
	for _, r := range KnownRights() {
		if string(r) == name {
			return r, true
		}
	}
	return "", false
}

// SnapshotPayload is the raw decoded response of the permissions endpoint.
// A nil value means the field was absent or null.
type SnapshotPayload map[Right]*bool

// PermissionSnapshot is an immutable view of the user's rights.
// The zero value is an empty snapshot.
type PermissionSnapshot struct {
	rights map[Right]bool
}

// NewPermissionSnapshot copies values into a new snapshot.
func NewPermissionSnapshot(values map[Right]bool) PermissionSnapshot {
	rights := make(map[Right]bool, len(values))
	for r, v := range values {
		rights[r] = v
	}
	return PermissionSnapshot{rights: rights}
}

// AllGranted returns a snapshot with every known right granted.
func AllGranted() PermissionSnapshot {
	rights := make(map[Right]bool)
	for _, r := range KnownRights() {
		rights[r] = true
	}
	return PermissionSnapshot{rights: rights}
}

// SnapshotFromPayload turns a raw payload into a snapshot. Absent or null fields are
// never read as denied: they fall back to previous when it knows the right, else true.
func SnapshotFromPayload(payload SnapshotPayload, previous *PermissionSnapshot) PermissionSnapshot {
	rights := make(map[Right]bool, len(KnownRights()))
	for _, r := range KnownRights() {
		if v, ok := payload[r]; ok && v != nil {
			rights[r] = *v
			continue
		}
		if previous != nil {
			if prev, ok := previous.Value(r); ok {
				rights[r] = prev
				continue
			}
		}
		rights[r] = true
	}
	return PermissionSnapshot{rights: rights}
}

// Value returns the stored value for r and whether the snapshot knows it.
func (s PermissionSnapshot) Value(r Right) (bool, bool) {
	v, ok := s.rights[r]
	return v, ok
}

// Granted reports whether r is granted. Unknown rights are treated as granted.
func (s PermissionSnapshot) Granted(r Right) bool {
	v, ok := s.rights[r]
	return !ok || v
}

// With returns a copy of the snapshot with r set to value.
func (s PermissionSnapshot) With(r Right, value bool) PermissionSnapshot {
	next := s.Rights()
	next[r] = value
	return PermissionSnapshot{rights: next}
}

// Rights returns a copy of the underlying mapping.
func (s PermissionSnapshot) Rights() map[Right]bool {
	out := make(map[Right]bool, len(s.rights))
	for r, v := range s.rights {
		out[r] = v
	}
	return out
}

// Names returns the rights carried by the snapshot, sorted.
func (s PermissionSnapshot) Names() []Right {
	names := make([]Right, 0, len(s.rights))
	for r := range s.rights {
		names = append(names, r)
	}
	sortRights(names)
	return names
}

// IsEmpty reports whether the snapshot carries no rights at all.
func (s PermissionSnapshot) IsEmpty() bool {
	return len(s.rights) == 0
}

// Equal compares two snapshots right by right.
func (s PermissionSnapshot) Equal(other PermissionSnapshot) bool {
	if len(s.rights) != len(other.rights) {
		return false
	}
	for r, v := range s.rights {
		if ov, ok := other.rights[r]; !ok || ov != v {
			return false
		}
	}
	return true
}

func sortRights(rights []Right) {
	sort.Slice(rights, func(i, j int) bool { return rights[i] < rights[j] })
}
