package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncwise/crmsync/contacts"
)

// Merge produces the exact write payload for one remote contact.
//
// The existing local record (when present) is the base, so every
// locally-owned field is carried over verbatim and the primary key stays
// stable. Remote values are overlaid only where non-empty: the remote system
// is authoritative only for fields it actually populates, and an empty remote
// value must never destroy local data. For brand-new records the payload
// starts from an empty skeleton, so fields the remote left empty are nulled —
// there is no existing value to protect.
func Merge(remote contacts.Contact, existing *Contact, ownerID string, stages contacts.StageMap, now time.Time) Contact {
	var payload Contact

	if existing != nil {
		payload = *existing
	} else {
		payload.ID = uuid.NewString()
	}

	payload.RemoteID = remote.ID
	payload.OwnerID = ownerID
	payload.LastSyncedAt = now.UTC()

	p := remote.Properties

	overlay(&payload.FirstName, p.FirstName)
	overlay(&payload.LastName, p.LastName)
	overlay(&payload.Email, p.Email)
	overlay(&payload.Phone, p.Phone)
	overlay(&payload.Company, p.Company)
	overlay(&payload.Website, p.Website)
	overlay(&payload.Address, p.Address)
	overlay(&payload.City, p.City)
	overlay(&payload.State, p.State)
	overlay(&payload.Zip, p.Zip)
	overlay(&payload.LeadStatus, p.LeadStatus)

	// Raw stage codes, including numeric custom-stage identifiers, are
	// translated before storage so downstream consumers never see them.
	if p.LifecycleStage != "" {
		payload.LifecycleStage = stages.Label(p.LifecycleStage)
	}

	if !remote.CreatedAt.IsZero() {
		t := remote.CreatedAt.UTC()
		payload.RemoteCreatedAt = &t
	}

	if !remote.UpdatedAt.IsZero() {
		t := remote.UpdatedAt.UTC()
		payload.RemoteModifiedAt = &t
	}

	return payload
}

func overlay(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
