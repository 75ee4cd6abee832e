package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/carson-networks/fints-sync/internal/banking"
)

// DefaultProfileName is the profile backed by the plain .env file.
const DefaultProfileName = "default"

// Built-in bank profile, used when an account's env file does not override
// the routing constants.
const (
	DefaultBLZ       = "36010043"
	DefaultHBCIURL   = "https://hbci.postbank.de/banking/hbci.do"
	DefaultProductID = "A44C2953982351617D475443E"
)

var (
	ErrNoAccounts       = errors.New("no account configurations found")
	ErrUnknownAccount   = errors.New("unknown account")
	ErrAmbiguousAccount = errors.New("multiple accounts configured, selection required")
)

// AccountProfile is the identity of one bank credential set, constructed
// once per run and immutable afterwards.
type AccountProfile struct {
	Name      string
	EnvPath   string
	BLZ       string
	HBCIURL   string
	IBAN      string
	ProductID string
}

// DialConfig assembles the protocol client configuration for this profile.
func (p AccountProfile) DialConfig(s Settings) banking.DialConfig {
	return banking.DialConfig{
		BLZ:       p.BLZ,
		ServerURL: p.HBCIURL,
		Username:  s.Username,
		PIN:       s.Password,
		ProductID: p.ProductID,
	}
}

// SessionSuffix is the per-account part of state file names. The default
// profile's files carry no suffix.
func (p AccountProfile) SessionSuffix() string {
	if p.Name == DefaultProfileName {
		return ""
	}
	return "." + p.Name
}

// DiscoverAccounts enumerates .env.<name> files under root. The example
// sentinel and editor/backup leftovers are skipped. When no suffixed file
// exists, the plain .env (if present) yields the "default" profile.
func DiscoverAccounts(root string) ([]AccountProfile, error) {
	matches, err := filepath.Glob(filepath.Join(root, ".env.*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var profiles []AccountProfile
	for _, path := range matches {
		base := filepath.Base(path)
		if base == ".env.example" {
			continue
		}
		switch filepath.Ext(base) {
		case ".bak", ".backup", ".old":
			continue
		}

		name := strings.TrimPrefix(base, ".env.")
		profile, err := loadProfile(name, path)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", name, err)
		}
		profiles = append(profiles, profile)
	}

	if len(profiles) == 0 {
		plain := filepath.Join(root, ".env")
		if _, err := os.Stat(plain); err == nil {
			profile, err := loadProfile(DefaultProfileName, plain)
			if err != nil {
				return nil, err
			}
			profiles = append(profiles, profile)
		}
	}

	return profiles, nil
}

func loadProfile(name, path string) (AccountProfile, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return AccountProfile{}, err
	}

	profile := AccountProfile{
		Name:      name,
		EnvPath:   path,
		BLZ:       DefaultBLZ,
		HBCIURL:   DefaultHBCIURL,
		ProductID: DefaultProductID,
	}
	if v := values["BLZ"]; v != "" {
		profile.BLZ = v
	}
	if v := values["HBCI_URL"]; v != "" {
		profile.HBCIURL = v
	}
	if v := values["PRODUCT_ID"]; v != "" {
		profile.ProductID = v
	}
	profile.IBAN = values["IBAN"]
	return profile, nil
}

// Chooser asks the operator to pick among several profiles, by listing them
// and accepting an index or a name. Nil in unattended contexts.
type Chooser func(prompt string, profiles []AccountProfile) (string, error)

// SelectAccount resolves which profile a run operates on. An explicitly
// requested name must exist. Without a request, a single profile is used as
// is; several profiles require a chooser, otherwise selection is ambiguous.
func SelectAccount(profiles []AccountProfile, requested string, choose Chooser) (AccountProfile, error) {
	if len(profiles) == 0 {
		return AccountProfile{}, ErrNoAccounts
	}

	if requested != "" {
		for _, p := range profiles {
			if p.Name == requested {
				return p, nil
			}
		}
		names := make([]string, len(profiles))
		for i, p := range profiles {
			names[i] = p.Name
		}
		return AccountProfile{}, fmt.Errorf("%w: %q (available: %s)",
			ErrUnknownAccount, requested, strings.Join(names, ", "))
	}

	if len(profiles) == 1 {
		return profiles[0], nil
	}

	if choose == nil {
		return AccountProfile{}, ErrAmbiguousAccount
	}

	answer, err := choose("Select account: ", profiles)
	if err != nil {
		return AccountProfile{}, err
	}
	answer = strings.TrimSpace(answer)

	if idx, err := strconv.Atoi(answer); err == nil {
		if idx >= 0 && idx < len(profiles) {
			return profiles[idx], nil
		}
	}
	for _, p := range profiles {
		if p.Name == answer {
			return p, nil
		}
	}
	return AccountProfile{}, fmt.Errorf("%w: invalid selection %q", ErrUnknownAccount, answer)
}
