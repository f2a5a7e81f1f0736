// Package testutil provides a fake remote CRM server and session helpers
// shared by package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/contacts"
	"github.com/syncwise/crmsync/session"
)

// FakeCRM is an in-memory stand-in for the remote CRM. It serves the
// listing, search and account endpoints from a fixed contact set, paginating
// with numeric offset cursors.
type FakeCRM struct {
	Server   *httptest.Server
	PortalID int64
	Token    string

	mu       sync.Mutex
	contacts []contacts.Contact

	// Reject429s, while positive, makes every contacts request answer 429
	// with a zero Retry-After before being decremented.
	Reject429s int

	ListCalls   int
	SearchCalls int
}

// NewFakeCRM starts a fake CRM serving the given contacts. Callers must
// Close it.
func NewFakeCRM(cs []contacts.Contact) *FakeCRM {
	f := &FakeCRM{
		PortalID: 8675309,
		Token:    "pat-test-token",
		contacts: cs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(common.ContactsPath, f.handleList)
	mux.HandleFunc(common.SearchPath, f.handleSearch)
	mux.HandleFunc(common.AccountPath, f.handleAccount)

	f.Server = httptest.NewServer(mux)

	return f
}

func (f *FakeCRM) Close() {
	f.Server.Close()
}

// SetContacts replaces the fixture set between runs.
func (f *FakeCRM) SetContacts(cs []contacts.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.contacts = cs
}

// Session returns a session signed in against the fake server, with retries
// tuned down so failure paths stay fast.
func (f *FakeCRM) Session() *session.Session {
	return &session.Session{
		HTTPClient:  QuietClient(),
		Server:      f.Server.URL,
		AccessToken: f.Token,
		OwnerID:     strconv.FormatInt(f.PortalID, 10),
		PortalID:    f.PortalID,
	}
}

func (f *FakeCRM) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+f.Token
}

func (f *FakeCRM) rejectRateLimited(w http.ResponseWriter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Reject429s > 0 {
		f.Reject429s--

		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)

		return true
	}

	return false
}

type pagingNext struct {
	After string `json:"after"`
}

type paging struct {
	Next pagingNext `json:"next"`
}

type pageBody struct {
	Results []contacts.Contact `json:"results"`
	Total   int64              `json:"total,omitempty"`
	Paging  *paging            `json:"paging,omitempty"`
}

func writePage(w http.ResponseWriter, all []contacts.Contact, after string, limit int, total int64) {
	offset := 0
	if after != "" {
		offset, _ = strconv.Atoi(after)
	}

	if offset > len(all) {
		offset = len(all)
	}

	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	body := pageBody{Results: all[offset:end], Total: total}

	if end < len(all) {
		body.Paging = &paging{Next: pagingNext{After: strconv.Itoa(end)}}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *FakeCRM) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if f.rejectRateLimited(w) {
		return
	}

	f.mu.Lock()
	f.ListCalls++
	all := append([]contacts.Contact(nil), f.contacts...)
	f.mu.Unlock()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = common.PageSize
	}

	writePage(w, all, r.URL.Query().Get("after"), limit, 0)
}

func (f *FakeCRM) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if f.rejectRateLimited(w) {
		return
	}

	var req struct {
		FilterGroups []struct {
			Filters []struct {
				PropertyName string `json:"propertyName"`
				Operator     string `json:"operator"`
				Value        string `json:"value"`
			} `json:"filters"`
		} `json:"filterGroups"`
		Limit int    `json:"limit"`
		After string `json:"after"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var sinceMillis int64

	for _, g := range req.FilterGroups {
		for _, flt := range g.Filters {
			if flt.PropertyName == "lastmodifieddate" && flt.Operator == "GTE" {
				sinceMillis, _ = strconv.ParseInt(flt.Value, 10, 64)
			}
		}
	}

	f.mu.Lock()
	f.SearchCalls++

	var matched []contacts.Contact

	for _, c := range f.contacts {
		if c.UpdatedAt.UnixMilli() >= sinceMillis {
			matched = append(matched, c)
		}
	}
	f.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})

	limit := req.Limit
	if limit <= 0 {
		limit = common.SearchPageSize
	}

	writePage(w, matched, req.After, limit, int64(len(matched)))
}

func (f *FakeCRM) handleAccount(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"portalId": f.PortalID,
		"timeZone": "US/Eastern",
	})
}

// NewRemoteContact builds a remote contact fixture.
func NewRemoteContact(id string, props contacts.Properties, updatedAt time.Time) contacts.Contact {
	return contacts.Contact{
		ID:         id,
		Properties: props,
		CreatedAt:  updatedAt.Add(-24 * time.Hour),
		UpdatedAt:  updatedAt,
	}
}

// QuietClient returns a retrying HTTP client tuned for fast tests.
func QuietClient() *retryablehttp.Client {
	client := common.NewHTTPClient()
	client.RetryMax = 0
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	return client
}
