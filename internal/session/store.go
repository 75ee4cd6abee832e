// Package session persists opaque protocol-dialog state between runs so a
// later connection can use a shortened handshake. Resumability is an
// optimization: any unreadable state degrades to a full handshake.
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/fints-sync/internal/banking"
	"github.com/carson-networks/fints-sync/internal/config"
)

const fileBase = ".fints_session"

// Store keeps one resume-state file per account under a state directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(profile config.AccountProfile) string {
	return filepath.Join(s.dir, fileBase+profile.SessionSuffix())
}

// Load returns the saved resume token, or nil when none exists. Read
// failures are not errors: the run continues with a full handshake.
func (s *Store) Load(profile config.AccountProfile) banking.ResumeToken {
	data, err := os.ReadFile(s.path(profile))
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).WithField("account", profile.Name).
				Warn("saved session state unreadable, forcing full handshake")
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return banking.ResumeToken(data)
}

// Save overwrites the account's resume state. The token is written to a
// temporary file and renamed into place so a crash mid-write never leaves
// a truncated file that a later Load would take for valid state.
func (s *Store) Save(profile config.AccountProfile, token banking.ResumeToken) error {
	target := s.path(profile)

	tmp, err := os.CreateTemp(s.dir, fileBase+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(token); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing session state: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing session state: %w", err)
	}
	return nil
}

// Clear removes the saved state, forcing a full handshake next run.
// A missing file is not an error.
func (s *Store) Clear(profile config.AccountProfile) error {
	err := os.Remove(s.path(profile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
