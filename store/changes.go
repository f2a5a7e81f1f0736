package store

import "github.com/syncwise/crmsync/contacts"

// FieldChange records one field-level difference between a remote contact and
// the local record it maps to.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// DetectChanges reports the mirrored fields on which a non-empty remote value
// differs from the stored local value. Remote timestamps are excluded: a
// record whose lastmodifieddate moved but whose data did not is not a change
// worth reporting. Empty remote values are also excluded, matching the
// overlay rule applied at merge time.
func DetectChanges(remote contacts.Contact, existing Contact, stages contacts.StageMap) (changes []FieldChange) {
	p := remote.Properties

	fields := []struct {
		name   string
		remote string
		local  string
	}{
		{"first_name", p.FirstName, existing.FirstName},
		{"last_name", p.LastName, existing.LastName},
		{"email", p.Email, existing.Email},
		{"phone", p.Phone, existing.Phone},
		{"company", p.Company, existing.Company},
		{"website", p.Website, existing.Website},
		{"address", p.Address, existing.Address},
		{"city", p.City, existing.City},
		{"state", p.State, existing.State},
		{"zip", p.Zip, existing.Zip},
		{"lead_status", p.LeadStatus, existing.LeadStatus},
	}

	for _, f := range fields {
		if f.remote != "" && f.remote != f.local {
			changes = append(changes, FieldChange{Field: f.name, Old: f.local, New: f.remote})
		}
	}

	// Compare the stage post-translation so a stable stage whose raw code
	// happens to differ from the stored label is not a false positive.
	if p.LifecycleStage != "" {
		label := stages.Label(p.LifecycleStage)
		if label != existing.LifecycleStage {
			changes = append(changes, FieldChange{Field: "lifecycle_stage", Old: existing.LifecycleStage, New: label})
		}
	}

	return changes
}
