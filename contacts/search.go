package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/matryer/try"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/log"
	"github.com/syncwise/crmsync/session"
)

// SearchInput defines the input for fetching one page of contacts modified
// at or after the given cutoff.
type SearchInput struct {
	Session       *session.Session
	ModifiedSince time.Time
	Cursor        string
	PageSize      int
}

// SearchOutput carries the page plus the total match count the remote
// reports, so callers can detect when the search cap will be exceeded.
type SearchOutput struct {
	Page  Page
	Total int64
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchFilterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchSort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type searchRequest struct {
	FilterGroups []searchFilterGroup `json:"filterGroups"`
	Properties   []string            `json:"properties"`
	Limit        int                 `json:"limit"`
	After        string              `json:"after,omitempty"`
	Sorts        []searchSort        `json:"sorts"`
}

// SearchPage retrieves one page from the search endpoint, filtered to
// contacts whose last-modified timestamp is at or after the cutoff, sorted
// ascending by that timestamp so an interrupted run can resume via a
// recomputed cutoff without skipping records.
func SearchPage(input SearchInput) (out SearchOutput, err error) {
	if !input.Session.Valid() {
		return out, fmt.Errorf("session is invalid")
	}

	if input.ModifiedSince.IsZero() {
		return out, fmt.Errorf("modified-since cutoff is required")
	}

	limit := determineLimit(input.PageSize, common.SearchPageSize, input.Session.Debug)

	reqBody, err := json.Marshal(searchRequest{
		FilterGroups: []searchFilterGroup{{
			Filters: []searchFilter{{
				PropertyName: "lastmodifieddate",
				Operator:     "GTE",
				Value:        strconv.FormatInt(input.ModifiedSince.UnixMilli(), 10),
			}},
		}},
		Properties: PropertyNames,
		Limit:      limit,
		After:      input.Cursor,
		Sorts: []searchSort{{
			PropertyName: "lastmodifieddate",
			Direction:    "ASCENDING",
		}},
	})
	if err != nil {
		return out, fmt.Errorf("failed to build search request: %w", err)
	}

	u := input.Session.Server + common.SearchPath

	var body []byte

	rErr := try.Do(func(attempt int) (bool, error) {
		var fErr error

		body, fErr = makeContactsRequest(input.Session, http.MethodPost, u, reqBody)
		if fErr != nil {
			log.DebugPrint(input.Session.Debug, fmt.Sprintf("SearchPage | attempt %d: %s", attempt, fErr.Error()), common.MaxDebugChars)

			// a rate-limit hint wait already happened; backoff only
			// for other failures
			if attempt < common.MaxRequestRetries && !errors.Is(fErr, errRateLimited) {
				time.Sleep(common.RetryDelay(attempt))
			}
		}

		return attempt < common.MaxRequestRetries, fErr
	})
	if rErr != nil {
		return out, fmt.Errorf("search contacts | %w", rErr)
	}

	if err = validatePageResponse(input.Session, body); err != nil {
		return
	}

	var resp pageResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return out, fmt.Errorf("failed to parse search page: %w", err)
	}

	out.Total = resp.Total
	out.Page.Contacts = resp.Results

	if resp.Paging != nil && resp.Paging.Next != nil {
		out.Page.Cursor = resp.Paging.Next.After
	}

	if out.Total > common.MaxSearchResults {
		log.DebugPrint(input.Session.Debug, fmt.Sprintf("SearchPage | %d total matches exceeds the %d search cap; results will be truncated", out.Total, common.MaxSearchResults), common.MaxDebugChars)
	}

	return out, nil
}
