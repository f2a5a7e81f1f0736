package contacts

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/log"
	"github.com/syncwise/crmsync/session"
)

// errRateLimited marks a 429 whose wait has already been served, so retry
// loops must not add their own backoff on top of it.
var errRateLimited = errors.New("rate limited by remote")

// makeContactsRequest performs one authenticated call against the remote CRM
// and returns the response body. The underlying client retries transient
// failures and 429s with backoff, honoring a Retry-After header when the
// remote supplies one; a 429 surfacing here means retries were exhausted.
func makeContactsRequest(sess *session.Session, method, u string, reqBody []byte) (responseBody []byte, err error) {
	httpClient := sess.HTTPClient
	if httpClient == nil {
		httpClient = common.NewHTTPClient()
	}

	// Allow overriding timeout via environment variable
	if envTimeout, ok, tErr := common.ParseEnvInt64(common.EnvRequestTimeout); tErr == nil && ok {
		httpClient.HTTPClient.Timeout = time.Duration(envTimeout) * time.Second
	}

	log.DebugPrint(sess.Debug, fmt.Sprintf("makeContactsRequest | %s %s (%d req bytes)", method, u, len(reqBody)), common.MaxDebugChars)

	var request *retryablehttp.Request

	request, err = retryablehttp.NewRequest(method, u, reqBody)
	if err != nil {
		return
	}

	request.Header.Set(common.HeaderContentType, common.APIContentType)
	request.Header.Set("Authorization", "Bearer "+sess.AccessToken)

	start := time.Now()

	var response *http.Response

	response, err = httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("contacts request failed: %w", err)
	}

	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			log.DebugPrint(sess.Debug, fmt.Sprintf("makeContactsRequest | failed to close response body: %v", closeErr), common.MaxDebugChars)
		}
	}()

	responseBody, err = io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	log.DebugPrint(sess.Debug, fmt.Sprintf("makeContactsRequest | %s in %v (%d resp bytes)", response.Status, time.Since(start), len(responseBody)), common.MaxDebugChars)

	switch response.StatusCode {
	case http.StatusOK:
		return responseBody, nil
	case http.StatusTooManyRequests:
		wait := rateLimitWait(response)
		log.DebugPrint(sess.Debug, fmt.Sprintf("makeContactsRequest | rate limited, honoring %v wait before surfacing", wait), common.MaxDebugChars)
		time.Sleep(wait)

		return nil, fmt.Errorf("%w: %s", errRateLimited, response.Status)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized: %s", response.Status)
	default:
		snippet := string(responseBody)
		if len(snippet) > common.MaxDebugChars {
			snippet = snippet[:common.MaxDebugChars]
		}

		return nil, fmt.Errorf("contacts request failed with %s: %s", response.Status, snippet)
	}
}

// rateLimitWait returns the wait the remote asked for, or the default when
// no Retry-After header is present.
func rateLimitWait(response *http.Response) time.Duration {
	if v := response.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return common.RateLimitDefaultWait * time.Second
}
