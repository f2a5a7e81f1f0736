package common

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// API.
	APIServer    = "https://api.hubapi.com"
	ContactsPath = "/crm/v3/objects/contacts"        // remote path for unfiltered contact listing
	SearchPath   = "/crm/v3/objects/contacts/search" // remote path for modified-since searches
	AccountPath  = "/account-info/v3/details"        // remote path for resolving the owner scope

	// Paging.
	// PageSize is the number of contacts to request with each listing call.
	PageSize       = 100
	SearchPageSize = 100
	// MaxSyncRecords bounds a full listing traversal; the page cap is derived
	// from it rather than hard-coded.
	MaxSyncRecords = 300000
	MaxSyncPages   = MaxSyncRecords / PageSize
	// MaxSearchResults is the remote-side cap on total matches for the search
	// endpoint. Incremental runs expected to exceed it must use a full sync.
	MaxSearchResults = 10000
	MaxSearchPages   = MaxSearchResults / SearchPageSize
	// LoadPageSize is the number of local records loaded per query when
	// building the existing-record index.
	LoadPageSize = 1000
	// BatchSize is the number of merged payloads written per upsert statement.
	BatchSize = 50

	TimeLayout = "2006-01-02T15:04:05.000Z"

	// LOGGING.
	LibName       = "crmsync" // name of library used in logging
	MaxDebugChars = 120       // number of characters to display when logging API response body

	// HTTP.
	MaxIdleConnections = 100 // HTTP transport limit
	RequestTimeout     = 30  // HTTP transport limit, seconds
	MaxRequestRetries  = 3
	// RateLimitDefaultWait is the seconds to wait after a 429 response that
	// carries no Retry-After header.
	RateLimitDefaultWait = 5

	// PostPageDelay is the milliseconds slept between successful page
	// fetches, a proactive throttle independent of reactive retry.
	PostPageDelay = 200

	// MaxBatchRetries caps attempts for a single sub-batch write.
	MaxBatchRetries = 3
)

// NewHTTPClient returns the retrying client used for all remote calls.
// The default retry policy retries transient failures and 429s, and its
// backoff honors an explicit Retry-After header when the remote supplies one.
func NewHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = MaxRequestRetries
	c.RetryWaitMin = 1 * time.Second
	c.RetryWaitMax = RateLimitDefaultWait * time.Second
	c.Backoff = retryablehttp.DefaultBackoff
	c.HTTPClient.Timeout = RequestTimeout * time.Second
	c.Logger = nil

	return c
}

const HeaderContentType = "Content-Type"

const (
	APIContentType = "application/json"
)
