package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	secretService   = "fbaboss"
	apiTokenAccount = "api_token"
)

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// fileSecrets reads and writes secrets in a 0600 JSON file keyed by
// service and account.
type fileSecrets struct {
	path string
}

func (f fileSecrets) file() string {
	if f.path != "" {
		return f.path
	}
	return secretsFilePath()
}

func (f fileSecrets) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(f.file())
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f fileSecrets) Get(service, account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func (f fileSecrets) Set(service, account, value string) error {
	secrets, err := f.read()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	p := f.file()
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}

// SetEngineAPIKey stores the generation backend API key in the secret store.
func SetEngineAPIKey(key string) error {
	return fileSecrets{}.Set(secretService, "engine_api_key", key)
}

// GetAPIToken returns the bearer token protecting the HTTP API. A token set
// in config wins; otherwise one is read from the secret store, or generated
// and persisted on first use.
func GetAPIToken(cfg Config) (string, error) {
	return apiToken(cfg, fileSecrets{})
}

func apiToken(cfg Config, s fileSecrets) (string, error) {
	if cfg.API.Token != "" {
		return cfg.API.Token, nil
	}
	if tok, err := s.Get(secretService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := s.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
