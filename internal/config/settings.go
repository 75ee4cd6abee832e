package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/carson-networks/fints-sync/internal/banking"
)

const dateLayout = "2006-01-02"

// Settings are the banking credentials and saved TAN preference of one
// account, loaded from that account's env file.
type Settings struct {
	Username string
	Password string
	Tan      banking.TanPreference
}

// LoadSettings reads credentials from the profile's env file.
func LoadSettings(profile AccountProfile) (Settings, error) {
	values, err := godotenv.Read(profile.EnvPath)
	if err != nil {
		return Settings{}, fmt.Errorf("reading %s: %w", profile.EnvPath, err)
	}

	s := Settings{
		Username: values["FINTS_USERNAME"],
		Password: values["FINTS_PASSWORD"],
		Tan: banking.TanPreference{
			MechanismID:   values["FINTS_TAN_MECHANISM"],
			MechanismName: values["FINTS_TAN_MECHANISM_NAME"],
			MediumName:    values["FINTS_TAN_MEDIUM"],
		},
	}
	if s.Username == "" {
		return Settings{}, fmt.Errorf("FINTS_USERNAME is required in %s", profile.EnvPath)
	}
	if s.Password == "" {
		return Settings{}, fmt.Errorf("FINTS_PASSWORD is required in %s", profile.EnvPath)
	}
	return s, nil
}

// APISettings configure the external REST sink for API-sync mode.
type APISettings struct {
	URL       string
	User      string
	Password  string
	StartDate time.Time
	BotTarget string
}

// LoadAPISettings reads the API sink configuration. All connection fields
// and the start date are required.
func LoadAPISettings(profile AccountProfile) (APISettings, error) {
	values, err := godotenv.Read(profile.EnvPath)
	if err != nil {
		return APISettings{}, fmt.Errorf("reading %s: %w", profile.EnvPath, err)
	}

	var missing []string
	for _, key := range []string{"API_URL", "API_USER", "API_PASSWORD", "TRANSACTION_START_DATE"} {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return APISettings{}, fmt.Errorf("missing required settings in %s: %s",
			profile.EnvPath, strings.Join(missing, ", "))
	}

	startDate, err := time.Parse(dateLayout, values["TRANSACTION_START_DATE"])
	if err != nil {
		return APISettings{}, fmt.Errorf("TRANSACTION_START_DATE must be YYYY-MM-DD, got %q", values["TRANSACTION_START_DATE"])
	}

	return APISettings{
		URL:       strings.TrimRight(values["API_URL"], "/"),
		User:      values["API_USER"],
		Password:  values["API_PASSWORD"],
		StartDate: startDate,
		BotTarget: values["BOT_TARGET"],
	}, nil
}

// BotSettings configure bot-notify mode: where to send messages, how far
// back to fetch, and how long to wait for TAN confirmations.
type BotSettings struct {
	Target          string
	TransactionDays int
	TanTimeout      time.Duration
}

// LoadBotSettings reads bot-mode configuration; look-back and timeout fall
// back to 30 days and 300 seconds.
func LoadBotSettings(profile AccountProfile) (BotSettings, error) {
	values, err := godotenv.Read(profile.EnvPath)
	if err != nil {
		return BotSettings{}, fmt.Errorf("reading %s: %w", profile.EnvPath, err)
	}

	s := BotSettings{
		Target:          values["BOT_TARGET"],
		TransactionDays: 30,
		TanTimeout:      300 * time.Second,
	}
	if v := values["TRANSACTION_DAYS"]; v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			s.TransactionDays = days
		}
	}
	if v := values["TAN_TIMEOUT_SECONDS"]; v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			s.TanTimeout = time.Duration(secs) * time.Second
		}
	}
	return s, nil
}

// SaveTanPreferences writes the TAN preference back into the account's own
// env file so multi-account setups keep preferences isolated. Unrelated
// lines are preserved as-is.
func SaveTanPreferences(envPath string, pref banking.TanPreference) error {
	updates := map[string]string{
		"FINTS_TAN_MECHANISM":      pref.MechanismID,
		"FINTS_TAN_MECHANISM_NAME": pref.MechanismName,
	}
	if pref.MediumName != "" {
		updates["FINTS_TAN_MEDIUM"] = pref.MediumName
	}

	var lines []string
	if content, err := os.ReadFile(envPath); err == nil {
		trimmed := strings.TrimRight(string(content), "\n")
		if trimmed != "" {
			lines = strings.Split(trimmed, "\n")
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	seen := make(map[string]bool, len(updates))
	for i, line := range lines {
		for key, value := range updates {
			if strings.HasPrefix(line, key+"=") {
				lines[i] = key + "=" + value
				seen[key] = true
				break
			}
		}
	}
	// Append keys that were not present yet, in a stable order.
	for _, key := range []string{"FINTS_TAN_MECHANISM", "FINTS_TAN_MECHANISM_NAME", "FINTS_TAN_MEDIUM"} {
		value, ok := updates[key]
		if !ok || seen[key] {
			continue
		}
		lines = append(lines, key+"="+value)
	}

	return os.WriteFile(envPath, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}
