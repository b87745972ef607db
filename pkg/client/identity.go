package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const credentialsFile = "credentials.json"

// Credentials holds the caller identity material persisted by
// 'agora token --save' and read back by NewFromCredentials.
type Credentials struct {
	// ClientID is the stable identity sent as x-client-id on token requests.
	ClientID string `json:"client_id"`

	// ProviderSecret is the per-provider signing secret. Keep this secret;
	// anyone holding it can mint execution keys for the provider's agents.
	ProviderSecret string `json:"provider_secret,omitempty"`

	// SessionToken is the last issued session token, if one was saved.
	SessionToken string `json:"session_token,omitempty"`
}

// LoadCredentials reads credentials.json from dir.
//
//	creds, err := client.LoadCredentials(os.ExpandEnv("$HOME/.agora"))
func LoadCredentials(dir string) (*Credentials, error) {
	b, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", credentialsFile, err)
	}
	var creds Credentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", credentialsFile, err)
	}
	return &creds, nil
}

// SaveCredentials writes credentials.json to dir, creating the directory if
// needed. The file is written with mode 0600 since it carries the provider
// secret.
func SaveCredentials(dir string, creds *Credentials) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	path := filepath.Join(dir, credentialsFile)
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// NewFromCredentials creates an SDK client from the credentials saved in dir.
//
// Additional options can be appended:
//
//	c, err := client.NewFromCredentials(
//	    "https://registry.agoramesh.dev",
//	    os.ExpandEnv("$HOME/.agora"),
//	    client.WithTimeout(30*time.Second),
//	)
func NewFromCredentials(baseURL, dir string, opts ...Option) (*Client, error) {
	creds, err := LoadCredentials(dir)
	if err != nil {
		return nil, fmt.Errorf("load credentials from %q: %w", dir, err)
	}
	base := []Option{WithClientID(creds.ClientID)}
	if creds.ProviderSecret != "" {
		base = append(base, WithProviderSecret(creds.ProviderSecret))
	}
	if creds.SessionToken != "" {
		base = append(base, WithSessionToken(creds.SessionToken))
	}
	return New(baseURL, append(base, opts...)...)
}
