package storage

import (
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"meptrack-api/domain"
)

const (
	membersPartition = "meps"
	changesPartition = "changes"
)

type memberEntity struct {
	aztables.Entity
	MepID         string `json:"MepID"`
	Name          string `json:"Name"`
	Country       string `json:"Country"`
	NationalParty string `json:"NationalParty"`
	Group         string `json:"PoliticalGroup"`
	GroupShort    string `json:"PoliticalGroupShort"`
	PhotoURL      string `json:"PhotoURL,omitempty"`
	ProfileURL    string `json:"ProfileURL,omitempty"`
	Status        string `json:"Status"`
	LastUpdated   string `json:"LastUpdated"`
}

// memberPatch carries a partial member mutation; nil fields stay untouched
// because the store applies it as a merge update.
type memberPatch struct {
	aztables.Entity
	Name          *string `json:"Name,omitempty"`
	Country       *string `json:"Country,omitempty"`
	NationalParty *string `json:"NationalParty,omitempty"`
	Group         *string `json:"PoliticalGroup,omitempty"`
	GroupShort    *string `json:"PoliticalGroupShort,omitempty"`
	PhotoURL      *string `json:"PhotoURL,omitempty"`
	ProfileURL    *string `json:"ProfileURL,omitempty"`
	Status        *string `json:"Status,omitempty"`
	LastUpdated   string  `json:"LastUpdated"`
}

type changeEntity struct {
	aztables.Entity
	MepID      string `json:"MepID"`
	Name       string `json:"MepName"`
	ChangeType string `json:"ChangeType"`
	OldValue   string `json:"OldValue,omitempty"`
	NewValue   string `json:"NewValue,omitempty"`
	DetectedAt string `json:"DetectedAt"`
}

func memberEntityFrom(m domain.Member) memberEntity {
	return memberEntity{
		Entity: aztables.Entity{
			PartitionKey: membersPartition,
			RowKey:       rowKey(m.InternalID),
		},
		MepID:         m.MepID,
		Name:          m.Name,
		Country:       m.Country,
		NationalParty: m.NationalParty,
		Group:         m.Group,
		GroupShort:    m.GroupShort,
		PhotoURL:      m.PhotoURL,
		ProfileURL:    m.ProfileURL,
		Status:        string(m.Status),
		LastUpdated:   m.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
}

func (e memberEntity) toMember() domain.Member {
	id, _ := strconv.ParseInt(e.RowKey, 10, 64)
	// A malformed LastUpdated decodes to the zero time, which the timestamp
	// heuristic treats as arbitrarily old.
	updated, _ := time.Parse(time.RFC3339Nano, e.LastUpdated)
	return domain.Member{
		InternalID:    id,
		MepID:         e.MepID,
		Name:          e.Name,
		Country:       e.Country,
		NationalParty: e.NationalParty,
		Group:         e.Group,
		GroupShort:    e.GroupShort,
		PhotoURL:      e.PhotoURL,
		ProfileURL:    e.ProfileURL,
		Status:        domain.Status(e.Status),
		LastUpdated:   updated,
	}
}

func memberPatchFrom(u domain.MemberUpdate) memberPatch {
	p := memberPatch{
		Entity: aztables.Entity{
			PartitionKey: membersPartition,
			RowKey:       rowKey(u.InternalID),
		},
		Name:          u.Name,
		Country:       u.Country,
		NationalParty: u.NationalParty,
		Group:         u.Group,
		GroupShort:    u.GroupShort,
		PhotoURL:      u.PhotoURL,
		ProfileURL:    u.ProfileURL,
		LastUpdated:   u.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
	if u.Status != nil {
		s := string(*u.Status)
		p.Status = &s
	}
	return p
}

func changeEntityFrom(ev domain.ChangeEvent, id int64) changeEntity {
	return changeEntity{
		Entity: aztables.Entity{
			PartitionKey: changesPartition,
			RowKey:       rowKey(id),
		},
		MepID:      ev.MepID,
		Name:       ev.Name,
		ChangeType: string(ev.Kind),
		OldValue:   ev.OldValue,
		NewValue:   ev.NewValue,
		DetectedAt: ev.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (e changeEntity) toChangeEvent() domain.ChangeEvent {
	detected, _ := time.Parse(time.RFC3339Nano, e.DetectedAt)
	return domain.ChangeEvent{
		MepID:      e.MepID,
		Name:       e.Name,
		Kind:       domain.ChangeKind(e.ChangeType),
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		DetectedAt: detected,
	}
}
