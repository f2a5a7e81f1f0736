package session

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/log"
	"golang.org/x/term"
)

const (
	KeyringApplicationName   = "Session"
	KeyringService           = "CRMSyncCLI"
	MsgSessionRemovalSuccess = "session removed successfully"
	MsgSessionRemovalFailure = "failed to remove session"
)

// Session holds the authenticated identity required to communicate with the
// remote CRM and to partition local records. OwnerID is the owner scope every
// local record is keyed under; it is resolved from the access token at
// sign-in and never trusted from caller input.
type Session struct {
	Debug            bool
	HTTPClient       *retryablehttp.Client
	SchemaValidation bool
	Server           string
	AccessToken      string `json:"access_token"`
	OwnerID          string `json:"owner_id"`
	PortalID         int64  `json:"portal_id"`
	TimeZone         string `json:"time_zone,omitempty"`
	Schemas          map[string]*jsonschema.Schema
}

type MinimalSession struct {
	Server      string
	AccessToken string `json:"access_token"`
	OwnerID     string `json:"owner_id"`
	PortalID    int64  `json:"portal_id"`
	TimeZone    string `json:"time_zone,omitempty"`
}

// Valid reports whether the session carries everything a sync run needs.
func (s *Session) Valid() bool {
	switch {
	case s == nil:
		return false
	case s.Server == "":
		log.DebugPrint(s.Debug, "session is missing server", common.MaxDebugChars)
		return false
	case s.AccessToken == "":
		log.DebugPrint(s.Debug, "session is missing access token", common.MaxDebugChars)
		return false
	case s.OwnerID == "":
		log.DebugPrint(s.Debug, "session is missing owner scope", common.MaxDebugChars)
		return false
	}

	return true
}

// GetCredentials returns the access token and server to authenticate with,
// sourced from viper config, the environment, or an interactive prompt, in
// that order of precedence.
func GetCredentials(inServer string) (token, server, errMsg string) {
	switch {
	case viper.GetString("token") != "":
		token = viper.GetString("token")
	case os.Getenv(common.EnvToken) != "":
		token = os.Getenv(common.EnvToken)
	default:
		fmt.Print("access token: ")

		byteToken, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			errMsg = fmt.Sprintf("failed to read token: %v", err)
			return
		}

		fmt.Println()

		token = strings.TrimSpace(string(byteToken))
		if len(token) == 0 {
			errMsg = "token not defined"
			return
		}
	}

	switch {
	case inServer != "":
		server = inServer
	case viper.GetString("server") != "":
		server = viper.GetString("server")
	case os.Getenv(common.EnvServer) != "":
		server = os.Getenv(common.EnvServer)
	default:
		server = common.APIServer
	}

	return token, server, errMsg
}

type SignInInput struct {
	HTTPClient  *retryablehttp.Client
	Server      string
	AccessToken string
	Debug       bool
}

type SignInOutput struct {
	Session Session
}

// accountDetails is the shape returned by the account details endpoint used
// to resolve the owner scope for a token.
type accountDetails struct {
	PortalID    int64  `json:"portalId"`
	AccountType string `json:"accountType"`
	TimeZone    string `json:"timeZone"`
	UIDomain    string `json:"uiDomain"`
}

// SignIn exchanges an access token for a session identity by requesting the
// account details the token is scoped to. A token the remote rejects returns
// an error rather than a partial session.
func SignIn(input SignInInput) (output SignInOutput, err error) {
	if input.AccessToken == "" {
		return output, fmt.Errorf("access token is required")
	}

	if input.Server == "" {
		input.Server = common.APIServer
	}

	httpClient := input.HTTPClient
	if httpClient == nil {
		httpClient = common.NewHTTPClient()
	}

	u := input.Server + common.AccountPath
	log.DebugPrint(input.Debug, fmt.Sprintf("SignIn | URL: %s", u), common.MaxDebugChars)

	var req *retryablehttp.Request

	req, err = retryablehttp.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return
	}

	req.Header.Set("Authorization", "Bearer "+input.AccessToken)
	req.Header.Set(common.HeaderContentType, common.APIContentType)

	start := time.Now()

	var resp *http.Response

	resp, err = httpClient.Do(req)
	if err != nil {
		return output, fmt.Errorf("sign-in request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return output, fmt.Errorf("failed to read sign-in response: %w", err)
	}

	log.DebugPrint(input.Debug, fmt.Sprintf("SignIn | %s in %v", resp.Status, time.Since(start)), common.MaxDebugChars)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return output, fmt.Errorf("authentication failed: %s", resp.Status)
	default:
		return output, fmt.Errorf("sign-in failed with: %s", resp.Status)
	}

	var details accountDetails
	if err = json.Unmarshal(body, &details); err != nil {
		return output, fmt.Errorf("failed to parse account details: %w", err)
	}

	if details.PortalID == 0 {
		return output, fmt.Errorf("account details missing portal id")
	}

	output.Session = Session{
		Debug:       input.Debug,
		HTTPClient:  httpClient,
		Server:      input.Server,
		AccessToken: input.AccessToken,
		PortalID:    details.PortalID,
		OwnerID:     strconv.FormatInt(details.PortalID, 10),
		TimeZone:    details.TimeZone,
	}

	return output, nil
}

// GetSessionFromUser prompts for any missing credentials and signs in.
func GetSessionFromUser(httpClient *retryablehttp.Client, server string, debug bool) (Session, error) {
	token, apiServer, errMsg := GetCredentials(server)
	if errMsg != "" {
		return Session{}, fmt.Errorf("%s", errMsg)
	}

	log.DebugPrint(debug, fmt.Sprintf("attempting sign-in with %d char token and server '%s'", len(token), apiServer), common.MaxDebugChars)

	out, err := SignIn(SignInInput{
		HTTPClient:  httpClient,
		Server:      apiServer,
		AccessToken: token,
		Debug:       debug,
	})
	if err != nil {
		return Session{}, err
	}

	return out.Session, nil
}

func makeMinimalSessionString(s Session) string {
	ms := MinimalSession{
		Server:      s.Server,
		AccessToken: s.AccessToken,
		OwnerID:     s.OwnerID,
		PortalID:    s.PortalID,
		TimeZone:    s.TimeZone,
	}

	sb, err := json.Marshal(ms)
	if err != nil {
		panic("failed to marshal session")
	}

	return string(sb)
}

// ParseSessionString converts a persisted minimal session back into a usable
// Session with a fresh HTTP client attached.
func ParseSessionString(in string, debug bool) (Session, error) {
	var ms MinimalSession

	if err := json.Unmarshal([]byte(in), &ms); err != nil {
		return Session{}, fmt.Errorf("failed to parse session: %w", err)
	}

	if ms.AccessToken == "" || ms.OwnerID == "" {
		return Session{}, fmt.Errorf("persisted session is incomplete")
	}

	return Session{
		Debug:       debug,
		HTTPClient:  common.NewHTTPClient(),
		Server:      ms.Server,
		AccessToken: ms.AccessToken,
		OwnerID:     ms.OwnerID,
		PortalID:    ms.PortalID,
		TimeZone:    ms.TimeZone,
	}, nil
}
