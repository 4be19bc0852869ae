package domain

import "time"

// ChangeKind classifies a detected roster transition.
type ChangeKind string

const (
	ChangeJoined      ChangeKind = "joined"
	ChangeLeft        ChangeKind = "left"
	ChangeGroupChange ChangeKind = "group_change"
)

// ChangeEvent is an immutable audit record of one detected transition. Name is
// denormalized at write time and never re-derived later. OldValue/NewValue carry
// group short codes: new group for joins, old group for leaves, both for group
// changes.
type ChangeEvent struct {
	MepID      string     `json:"mep_id"`
	Name       string     `json:"mep_name"`
	Kind       ChangeKind `json:"change_type"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}

// SyncStats summarizes one upsert sync run.
type SyncStats struct {
	Received     int  `json:"received"`
	Updated      int  `json:"updated"`
	Inserted     int  `json:"inserted"`
	Skipped      int  `json:"skipped"`
	RosterBefore int  `json:"existingInDb"`
	UpdateFailed bool `json:"updateFailed,omitempty"`
	InsertFailed bool `json:"insertFailed,omitempty"`
}

// DetectionStats carries per-cycle counters. Counts are always present in the
// response, zero or not.
type DetectionStats struct {
	CycleID              string    `json:"cycleId"`
	Mode                 string    `json:"mode"`
	RosterSize           int       `json:"totalMepsInDb"`
	ObservedReceived     int       `json:"scrapedMepsReceived"`
	DetectedJoins        int       `json:"detectedJoins"`
	DetectedLeaves       int       `json:"detectedLeaves"`
	DetectedGroupChanges int       `json:"detectedGroupChanges"`
	EventsLogged         int       `json:"eventsLogged"`
	EventWriteFailed     bool      `json:"eventWriteFailed,omitempty"`
	RosterWriteFailed    bool      `json:"rosterWriteFailed,omitempty"`
	Sync                 SyncStats `json:"sync"`
	DetectedAt           time.Time `json:"detectedAt"`
}

// DetectionResult is the caller-facing outcome of one detection cycle. The
// event slices contain only events whose store insert succeeded; the detected
// counters in Stats reflect what was observed regardless of write success.
type DetectionResult struct {
	Joined       []ChangeEvent  `json:"joined"`
	Left         []ChangeEvent  `json:"left"`
	GroupChanged []ChangeEvent  `json:"groupChanged"`
	Stats        DetectionStats `json:"stats"`
}

// ChangeSummary is the message enqueued for downstream consumers after a cycle
// that produced at least one event.
type ChangeSummary struct {
	CycleID      string        `json:"cycleId"`
	DetectedAt   time.Time     `json:"detectedAt"`
	Joins        int           `json:"joins"`
	Leaves       int           `json:"leaves"`
	GroupChanges int           `json:"groupChanges"`
	Events       []ChangeEvent `json:"events"`
}

// CleanupStats summarizes one duplicate-cleanup pass.
type CleanupStats struct {
	Scanned    int `json:"scanned"`
	Duplicates int `json:"duplicates"`
	Deleted    int `json:"deletedCount"`
}
