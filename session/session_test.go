package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"
	"github.com/syncwise/crmsync/common"
)

func fastClient() *retryablehttp.Client {
	client := common.NewHTTPClient()
	client.RetryMax = 0
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	return client
}

func newAccountServer(t *testing.T, token string, portalID int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(common.AccountPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"portalId":    portalID,
			"accountType": "STANDARD",
			"timeZone":    "US/Eastern",
			"uiDomain":    "app.example.com",
		})
	})

	return httptest.NewServer(mux)
}

func TestSignIn(t *testing.T) {
	t.Parallel()

	ts := newAccountServer(t, "pat-valid", 8675309)
	defer ts.Close()

	out, err := SignIn(SignInInput{
		HTTPClient:  fastClient(),
		Server:      ts.URL,
		AccessToken: "pat-valid",
	})
	require.NoError(t, err)
	require.True(t, out.Session.Valid())
	require.Equal(t, int64(8675309), out.Session.PortalID)
	require.Equal(t, "8675309", out.Session.OwnerID)
	require.Equal(t, "US/Eastern", out.Session.TimeZone)
	require.Equal(t, ts.URL, out.Session.Server)
}

func TestSignInBadToken(t *testing.T) {
	t.Parallel()

	ts := newAccountServer(t, "pat-valid", 8675309)
	defer ts.Close()

	_, err := SignIn(SignInInput{
		HTTPClient:  fastClient(),
		Server:      ts.URL,
		AccessToken: "pat-wrong",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "authentication failed")
}

func TestSignInMissingToken(t *testing.T) {
	t.Parallel()

	_, err := SignIn(SignInInput{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "access token is required")
}

func TestSessionValid(t *testing.T) {
	t.Parallel()

	s := Session{Server: "https://api.example.com", AccessToken: "pat", OwnerID: "1"}
	require.True(t, s.Valid())

	s.OwnerID = ""
	require.False(t, s.Valid())

	var nilSession *Session

	require.False(t, nilSession.Valid())
}

func TestMakeAndParseSessionString(t *testing.T) {
	t.Parallel()

	in := Session{
		Server:      "https://api.example.com",
		AccessToken: "pat-roundtrip",
		OwnerID:     "42",
		PortalID:    42,
		TimeZone:    "UTC",
	}

	out, err := ParseSessionString(makeMinimalSessionString(in), false)
	require.NoError(t, err)
	require.Equal(t, in.Server, out.Server)
	require.Equal(t, in.AccessToken, out.AccessToken)
	require.Equal(t, in.OwnerID, out.OwnerID)
	require.Equal(t, in.PortalID, out.PortalID)
	require.NotNil(t, out.HTTPClient)
}

func TestSignInLive(t *testing.T) {
	if os.Getenv(common.EnvSkipLiveTests) != "" {
		t.Skip("live tests disabled")
	}

	token := os.Getenv(common.EnvToken)
	if token == "" {
		t.Skipf("%s not set", common.EnvToken)
	}

	out, err := SignIn(SignInInput{AccessToken: token})
	require.NoError(t, err)
	require.True(t, out.Session.Valid())
}

func TestParseSessionStringInvalid(t *testing.T) {
	t.Parallel()

	_, err := ParseSessionString("not json", false)
	require.Error(t, err)

	_, err = ParseSessionString(`{"access_token":""}`, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "incomplete")
}
