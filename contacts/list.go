package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matryer/try"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/log"
	"github.com/syncwise/crmsync/session"
)

// Page is one page of remote contacts plus the cursor for the next page.
// An empty cursor means the traversal is complete.
type Page struct {
	Contacts []Contact
	Cursor   string
}

type pageResponse struct {
	Results []Contact `json:"results"`
	Total   int64     `json:"total"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// ListInput defines the input for fetching one page of the unfiltered
// contact listing.
type ListInput struct {
	Session  *session.Session
	Cursor   string
	PageSize int // override default number of contacts to request
}

// ListPage retrieves one page of contacts from the listing endpoint,
// requesting the fixed property list and following cursor pagination.
func ListPage(input ListInput) (page Page, err error) {
	if !input.Session.Valid() {
		return page, fmt.Errorf("session is invalid")
	}

	limit := determineLimit(input.PageSize, common.PageSize, input.Session.Debug)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("properties", strings.Join(PropertyNames, ","))

	if input.Cursor != "" {
		q.Set("after", input.Cursor)
	}

	u := input.Session.Server + common.ContactsPath + "?" + q.Encode()

	var body []byte

	rErr := try.Do(func(attempt int) (bool, error) {
		var fErr error

		body, fErr = makeContactsRequest(input.Session, http.MethodGet, u, nil)
		if fErr != nil {
			log.DebugPrint(input.Session.Debug, fmt.Sprintf("ListPage | attempt %d: %s", attempt, fErr.Error()), common.MaxDebugChars)

			// a rate-limit hint wait already happened; backoff only
			// for other failures
			if attempt < common.MaxRequestRetries && !errors.Is(fErr, errRateLimited) {
				time.Sleep(common.RetryDelay(attempt))
			}
		}

		return attempt < common.MaxRequestRetries, fErr
	})
	if rErr != nil {
		return page, fmt.Errorf("list contacts | %w", rErr)
	}

	return parsePage(input.Session, body)
}

func parsePage(sess *session.Session, body []byte) (page Page, err error) {
	if err = validatePageResponse(sess, body); err != nil {
		return
	}

	var resp pageResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return page, fmt.Errorf("failed to parse contacts page: %w", err)
	}

	page.Contacts = resp.Results

	if resp.Paging != nil && resp.Paging.Next != nil {
		page.Cursor = resp.Paging.Next.After
	}

	log.DebugPrint(sess.Debug, fmt.Sprintf("parsePage | %d contacts, next cursor %q", len(page.Contacts), page.Cursor), common.MaxDebugChars)

	return page, nil
}

// validatePageResponse checks the raw page payload against the embedded
// schema when the session has schema validation enabled.
func validatePageResponse(sess *session.Session, body []byte) error {
	if !sess.SchemaValidation || sess.Schemas == nil {
		return nil
	}

	sch, ok := sess.Schemas["contacts-page"]
	if !ok {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("failed to parse page for validation: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("page failed schema validation: %w", err)
	}

	return nil
}

// determineLimit returns the page size to use for a fetch request.
func determineLimit(pageSize, fallback int, debug bool) int {
	if pageSize > 0 {
		log.DebugPrint(debug, fmt.Sprintf("determineLimit | input page size: %d", pageSize), common.MaxDebugChars)
		return pageSize
	}

	log.DebugPrint(debug, fmt.Sprintf("determineLimit | using default limit: %d", fallback), common.MaxDebugChars)

	return fallback
}
