package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// LoadToken reads a persisted OAuth2 token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file %s: %w", path, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no token", path)
	}
	return &token, nil
}

// SaveToken writes token to path, readable by the owner only.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("creating token directory %s: %w", directory, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing token file %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("restricting token file %s: %w", path, err)
	}
	return nil
}

// persistingSource saves every newly issued token back to disk.
type persistingSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	last   string
	onSave func(error)
}

func newPersistingSource(base oauth2.TokenSource, path string, current *oauth2.Token, onSave func(error)) *persistingSource {
	s := &persistingSource{base: base, path: path, onSave: onSave}
	if current != nil {
		s.last = current.AccessToken
	}
	return s
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		saveErr := SaveToken(s.path, token)
		if s.onSave != nil {
			s.onSave(saveErr)
		}
	}
	return token, nil
}
