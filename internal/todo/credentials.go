package todo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoToken means no credentials have been stored yet; callers usually turn
// this into a "please log in" message.
var ErrNoToken = errors.New("not logged in")

// FileStore keeps the bearer token in a file under the user config dir, the
// terminal-client analogue of browser local storage.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultTokenPath places the token under the platform user config dir.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "todovoice", "token"), nil
}

func (s *FileStore) Token() (string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *FileStore) SetToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token+"\n"), 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// StaticStore holds a fixed token in memory; handy for tests and one-shot
// invocations with a token from the environment.
type StaticStore struct {
	token string
}

func NewStaticStore(token string) *StaticStore {
	return &StaticStore{token: token}
}

func (s *StaticStore) Token() (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *StaticStore) SetToken(token string) error {
	s.token = token
	return nil
}

func (s *StaticStore) Clear() error {
	s.token = ""
	return nil
}
