package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Secrets sensitive configuration loaded from the .secrets file (dotenv syntax)
type Secrets struct {
	values map[string]string
}

// NewSecrets creates a new Secrets instance
func NewSecrets() *Secrets {
	return &Secrets{
		values: make(map[string]string),
	}
}

// SecretsPath returns the secrets file path
func SecretsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".secrets"), nil
}

// LoadSecrets loads secrets from the .secrets file.
// A missing or unreadable file yields empty secrets.
func LoadSecrets() (*Secrets, error) {
	secrets := NewSecrets()

	secretsPath, err := SecretsPath()
	if err != nil {
		return secrets, nil
	}

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return secrets, nil
	}

	values, err := godotenv.Read(secretsPath)
	if err != nil {
		return secrets, err
	}
	secrets.values = values

	return secrets, nil
}

// Get returns the value for a key
func (s *Secrets) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

// APIKeyFor returns the model credential: API_KEY first, then the
// provider-specific key (GEMINI_API_KEY or OPENAI_API_KEY)
func (s *Secrets) APIKeyFor(provider string) string {
	if key := s.Get("API_KEY"); key != "" {
		return key
	}
	if normalizeProvider(provider) == ProviderOpenAI {
		return s.Get("OPENAI_API_KEY")
	}
	return s.Get("GEMINI_API_KEY")
}
