package contacts

import (
	"strings"
	"time"
)

// Contact is one contact record as returned by the remote CRM. It is
// read-only from this library's perspective.
type Contact struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Archived   bool       `json:"archived"`
}

// Properties models the fixed set of remote properties the engine consumes.
// The remote API returns a string-keyed bag; decoding into named fields keeps
// the merge logic exhaustive and ignores properties we never asked for.
type Properties struct {
	FirstName        string `json:"firstname,omitempty"`
	LastName         string `json:"lastname,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Company          string `json:"company,omitempty"`
	Website          string `json:"website,omitempty"`
	Address          string `json:"address,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	Zip              string `json:"zip,omitempty"`
	LifecycleStage   string `json:"lifecyclestage,omitempty"`
	LeadStatus       string `json:"hs_lead_status,omitempty"`
	CreateDate       string `json:"createdate,omitempty"`
	LastModifiedDate string `json:"lastmodifieddate,omitempty"`
}

// PropertyNames is the explicit property list requested on every remote
// call. Requesting a fixed list rather than all properties bounds payload
// size and keeps Properties authoritative for what the engine reads.
var PropertyNames = []string{
	"firstname",
	"lastname",
	"email",
	"phone",
	"company",
	"website",
	"address",
	"city",
	"state",
	"zip",
	"lifecyclestage",
	"hs_lead_status",
	"createdate",
	"lastmodifieddate",
}

func (c Contact) GetID() string {
	return c.ID
}

// DisplayName returns a human-readable identifier for logging,
// preferring name over email over the remote identifier.
func (c Contact) DisplayName() string {
	name := strings.TrimSpace(c.Properties.FirstName + " " + c.Properties.LastName)
	if name != "" {
		return name
	}

	if c.Properties.Email != "" {
		return c.Properties.Email
	}

	return c.ID
}
