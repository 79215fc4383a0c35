// Package settings keeps the API credentials and system prompt, and owns
// the IAM token lifecycle.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultSystemPrompt asks the model for bare PyTest code targeting Chrome.
const DefaultSystemPrompt = "Ты должен писать только код. И ничего больше. \n" +
	"Ты используешь PyTest, Python в написании кода.\n" +
	"А так же используешь Chrome в качестве основного браузера. \n" +
	"В конце ничего так же не требуется писать."

// Settings is the persisted credential state.
type Settings struct {
	OAuthToken      string
	IAMToken        string
	IAMTokenExpires time.Time
	SystemPrompt    string
}

// TokenValid reports whether the IAM token may be used at now.
func (s Settings) TokenValid(now time.Time) bool {
	return s.IAMToken != "" && now.Before(s.IAMTokenExpires)
}

// Defaults returns the state used when nothing has been persisted yet.
// The IAM token is already expired at now.
func Defaults(now time.Time) Settings {
	return Settings{
		IAMTokenExpires: now.UTC(),
		SystemPrompt:    DefaultSystemPrompt,
	}
}

// settingsFile is the on-disk shape. Absent keys keep their defaults.
type settingsFile struct {
	OAuthToken      *string `json:"oauth_token"`
	IAMToken        *string `json:"iam_token"`
	IAMTokenExpires *string `json:"iam_token_expires"`
	SystemPrompt    *string `json:"system_prompt"`
}

func encode(s Settings) ([]byte, error) {
	expires := s.IAMTokenExpires.UTC().Format(time.RFC3339Nano)
	return json.MarshalIndent(settingsFile{
		OAuthToken:      &s.OAuthToken,
		IAMToken:        &s.IAMToken,
		IAMTokenExpires: &expires,
		SystemPrompt:    &s.SystemPrompt,
	}, "", "    ")
}

// decode overlays the document in data onto base.
func decode(data []byte, base Settings) (Settings, error) {
	var file settingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Settings{}, err
	}

	s := base
	if file.OAuthToken != nil {
		s.OAuthToken = *file.OAuthToken
	}
	if file.IAMToken != nil {
		s.IAMToken = *file.IAMToken
	}
	if file.SystemPrompt != nil {
		s.SystemPrompt = *file.SystemPrompt
	}
	if file.IAMTokenExpires != nil {
		t, err := parseTimestamp(*file.IAMTokenExpires)
		if err != nil {
			return Settings{}, fmt.Errorf("iam_token_expires: %w", err)
		}
		s.IAMTokenExpires = t
	}

	return s, nil
}

// Zone-less timestamps are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}
