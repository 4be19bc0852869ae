package domain

import (
	"errors"
	"time"
)

// Status describes whether a member currently holds a seat.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Member is a person currently or formerly holding a tracked seat. MepID is the
// stable identifier assigned by the upstream source and is never reassigned;
// InternalID is assigned by the store and only used to address individual rows.
type Member struct {
	InternalID    int64     `json:"internalId"`
	MepID         string    `json:"mepId"`
	Name          string    `json:"name"`
	Country       string    `json:"country"`
	NationalParty string    `json:"nationalParty"`
	Group         string    `json:"politicalGroup"`
	GroupShort    string    `json:"politicalGroupShort"`
	PhotoURL      string    `json:"photoUrl,omitempty"`
	ProfileURL    string    `json:"profileUrl,omitempty"`
	Status        Status    `json:"status"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// ObservedRecord is one entry of a freshly scraped roster snapshot. It carries
// the same attributes as Member minus everything the store assigns.
type ObservedRecord struct {
	MepID         string `json:"mep_id"`
	Name          string `json:"name"`
	Country       string `json:"country"`
	NationalParty string `json:"national_party"`
	Group         string `json:"political_group"`
	GroupShort    string `json:"political_group_short"`
	PhotoURL      string `json:"photo_url,omitempty"`
	ProfileURL    string `json:"profile_url,omitempty"`
}

var errMissingField = errors.New("observed record missing required field")

// Validate reports whether the record carries the fields change detection
// depends on. Records failing validation are skipped, never fatal.
func (o ObservedRecord) Validate() error {
	if o.MepID == "" || o.Name == "" || o.GroupShort == "" {
		return errMissingField
	}
	return nil
}

// MemberUpdate is a partial mutation of a stored member, addressed by internal
// id. Nil fields are left untouched by the store.
type MemberUpdate struct {
	InternalID    int64
	Name          *string
	Country       *string
	NationalParty *string
	Group         *string
	GroupShort    *string
	PhotoURL      *string
	ProfileURL    *string
	Status        *Status
	LastUpdated   time.Time
}

// NewUpdate starts a MemberUpdate for the given row with a fresh timestamp.
func NewUpdate(internalID int64, now time.Time) MemberUpdate {
	return MemberUpdate{InternalID: internalID, LastUpdated: now}
}
