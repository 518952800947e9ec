package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// EnvToken supplies a bearer token without a credentials file
const EnvToken = "AGENTCHAT_TOKEN"

// ErrNoCredentials is returned when neither the environment nor the
// credentials file provides a token.
var ErrNoCredentials = errors.New("no credentials found. Please import a token first:\n  agentchat import-token <token-or-file>")

// Credentials is the auth context handed to the API client
type Credentials struct {
	mu           sync.RWMutex `json:"-"` // Not serialized
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
}

// GetToken returns the bearer token in a thread-safe manner
func (c *Credentials) GetToken() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Token
}

// SetTokens updates both tokens atomically
func (c *Credentials) SetTokens(token, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Token = token
	c.RefreshToken = refreshToken
}

// AuthHeader returns the Authorization header value, "" without a token
func (c *Credentials) AuthHeader() string {
	token := strings.TrimSpace(c.GetToken())
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// LoadCredentials returns the token from AGENTCHAT_TOKEN, or else from the
// credentials file.
func LoadCredentials() (*Credentials, error) {
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		return &Credentials{Token: token}, nil
	}

	credentialsPath, err := GetCredentialsPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, errors.Wrap(err, "failed to read credentials file")
	}

	return parseCredentials(data)
}

// parseCredentials accepts {token, refresh_token}, the browser storage
// shape {token, refreshToken}, or a bare token.
func parseCredentials(data []byte) (*Credentials, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("credentials are empty")
	}

	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]string
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, errors.Wrap(err, "invalid credentials format: expected {token, refresh_token} or a bare token")
		}
		creds := &Credentials{Token: raw["token"], RefreshToken: raw["refresh_token"]}
		if creds.RefreshToken == "" {
			creds.RefreshToken = raw["refreshToken"]
		}
		if err := ValidateCredentials(creds); err != nil {
			return nil, err
		}
		return creds, nil
	}

	if strings.ContainsAny(trimmed, " \t\n") && !strings.HasPrefix(strings.ToLower(trimmed), "bearer ") {
		return nil, errors.New("invalid credentials format: expected {token, refresh_token} or a bare token")
	}
	return &Credentials{Token: trimmed}, nil
}

// SaveCredentials saves credentials to the credentials file
func SaveCredentials(creds *Credentials) error {
	if err := ValidateCredentials(creds); err != nil {
		return err
	}
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	creds.mu.RLock()
	data, err := json.MarshalIndent(creds, "", "  ")
	creds.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to marshal credentials")
	}

	// Save with restrictive permissions (owner read/write only)
	path := filepath.Join(configDir, "credentials.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write credentials file")
	}
	return nil
}

// ImportCredentials stores a token given literally or as a path to a file
// holding one.
func ImportCredentials(source string) (*Credentials, error) {
	data := []byte(source)
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, errors.Wrap(err, "could not read file")
		}
	}

	creds, err := parseCredentials(data)
	if err != nil {
		return nil, err
	}
	if err := SaveCredentials(creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// ValidateCredentials checks if credentials are usable
func ValidateCredentials(creds *Credentials) error {
	if creds == nil {
		return errors.New("credentials are nil")
	}
	if strings.TrimSpace(creds.GetToken()) == "" {
		return errors.New("missing required field: token")
	}
	return nil
}
