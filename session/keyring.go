package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/syncwise/crmsync/common"
	"github.com/syncwise/crmsync/schemas"
	"github.com/zalando/go-keyring"
)

var HiWhite = color.New(color.FgHiWhite).SprintFunc()

// GetSessionFromKeyring returns the raw persisted session string.
func GetSessionFromKeyring() (string, error) {
	s, err := keyring.Get(KeyringService, KeyringApplicationName)
	if err != nil {
		return "", fmt.Errorf("GetSessionFromKeyring | %w", err)
	}

	return s, nil
}

// GetSession loads the persisted session and attaches a fresh HTTP client.
// Debug and schema validation can also be switched on via the environment.
func GetSession(debug bool) (Session, error) {
	raw, err := GetSessionFromKeyring()
	if err != nil {
		return Session{}, err
	}

	sess, err := ParseSessionString(raw, debug || common.ParseEnvBool(common.EnvDebug))
	if err != nil {
		return Session{}, err
	}

	if common.ParseEnvBool(common.EnvSchemaValidation) {
		sess.SchemaValidation = true

		sess.Schemas, err = schemas.LoadSchemas()
		if err != nil {
			return Session{}, err
		}
	}

	return sess, nil
}

// AddSession signs in with credentials from config, environment, or prompt,
// and persists the resulting session to the keyring. An existing session is
// only replaced after confirmation.
func AddSession(httpClient *retryablehttp.Client, server string, debug bool) (res string, err error) {
	var s string

	s, err = GetSessionFromKeyring()
	// only return an error if there's an issue accessing the keyring
	if err != nil && !strings.Contains(err.Error(), "secret not found in keyring") {
		return
	}

	if s != "" {
		fmt.Print("replace existing session (y|n): ")

		var resp string

		_, err = fmt.Scanln(&resp)
		if err != nil || strings.ToLower(resp) != "y" {
			return "", nil
		}
	}

	var sess Session

	sess, err = GetSessionFromUser(httpClient, server, debug)
	if err != nil {
		return fmt.Sprint("failed to get session: ", err), err
	}

	if err = writeSession(makeMinimalSessionString(sess)); err != nil {
		return fmt.Sprint("failed to set session: ", err), err
	}

	return "session added successfully", nil
}

func writeSession(s string) error {
	if err := keyring.Set(KeyringService, KeyringApplicationName, s); err != nil {
		return fmt.Errorf("writeSession | %w", err)
	}

	return nil
}

// UpdateSession replaces the persisted session with the given one.
func UpdateSession(sess *Session) error {
	if sess == nil || !sess.Valid() {
		return errors.New("invalid session")
	}

	if err := writeSession(makeMinimalSessionString(*sess)); err != nil {
		return fmt.Errorf("failed to write refreshed session: %w", err)
	}

	return nil
}

func SessionExists() error {
	s, err := GetSessionFromKeyring()
	if err != nil {
		return err
	}

	if len(s) == 0 {
		return errors.New("session is empty")
	}

	return nil
}

// RemoveSession removes the persisted session from the keyring.
func RemoveSession() string {
	if err := SessionExists(); err != nil {
		return fmt.Sprintf("%s: %s", MsgSessionRemovalFailure, err.Error())
	}

	if err := keyring.Delete(KeyringService, KeyringApplicationName); err != nil {
		return fmt.Sprintf("%s: %s", MsgSessionRemovalFailure, err.Error())
	}

	return MsgSessionRemovalSuccess
}

// SessionStatus returns a human-readable description of the persisted session.
func SessionStatus(debug bool) (msg string, err error) {
	var sess Session

	sess, err = GetSession(debug)
	if err != nil {
		return "", err
	}

	return fmt.Sprint("session found: ", HiWhite(fmt.Sprintf("portal %d (%s)", sess.PortalID, sess.Server))), nil
}
