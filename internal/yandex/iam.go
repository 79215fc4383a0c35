package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// IAMToken is a short-lived bearer credential and the moment it stops being valid
type IAMToken struct {
	Token     string
	ExpiresAt time.Time
}

type tokenRequest struct {
	OAuthToken string `json:"yandexPassportOauthToken"`
}

type tokenResponse struct {
	IAMToken  *string         `json:"iamToken"`
	ExpiresAt json.RawMessage `json:"expiresAt"`
}

// ExchangeToken trades a long-lived OAuth token for an IAM token.
func (c *Client) ExchangeToken(ctx context.Context, oauthToken string) (IAMToken, error) {
	if strings.TrimSpace(oauthToken) == "" {
		return IAMToken{}, apperrors.ErrMissingOAuthToken
	}

	requestID := newRequestID("iam")
	c.logger.Debug("exchanging oauth token",
		"request_id", requestID,
		"endpoint", c.tokenURL)

	body, err := c.postJSON(ctx, requestID, c.tokenURL, tokenRequest{OAuthToken: oauthToken}, "")
	if err != nil {
		return IAMToken{}, err
	}

	tok, err := parseTokenResponse(c.tokenURL, body)
	if err != nil {
		c.logger.Error("failed to parse token response",
			"request_id", requestID,
			"error", err)
		return IAMToken{}, err
	}

	c.logger.Info("iam token issued",
		"request_id", requestID,
		"expires_at", tok.ExpiresAt.Format(time.RFC3339))

	return tok, nil
}

func parseTokenResponse(endpoint string, body []byte) (IAMToken, error) {
	var response tokenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return IAMToken{}, &apperrors.ResponseShapeError{Endpoint: endpoint, Missing: "json body", Body: truncate(string(body), maxErrorBody), Err: err}
	}

	if response.IAMToken == nil || *response.IAMToken == "" {
		return IAMToken{}, &apperrors.ResponseShapeError{Endpoint: endpoint, Missing: "iamToken"}
	}

	if len(response.ExpiresAt) == 0 || string(response.ExpiresAt) == "null" {
		return IAMToken{}, &apperrors.ResponseShapeError{Endpoint: endpoint, Missing: "expiresAt"}
	}

	expires, err := ParseExpiry(response.ExpiresAt)
	if err != nil {
		return IAMToken{}, &apperrors.ResponseShapeError{Endpoint: endpoint, Missing: "expiresAt", Err: err}
	}

	return IAMToken{Token: *response.IAMToken, ExpiresAt: expires}, nil
}

// isoLayouts are tried in order for string expiries. Zone-less values are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseExpiry accepts an ISO-8601 timestamp string or a Unix epoch number
// (integer or fractional seconds) and returns the instant in UTC.
func ParseExpiry(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("empty expiry")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("decoding expiry string: %w", err)
		}
		s = strings.TrimSpace(s)
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return time.Time{}, fmt.Errorf("expiry is neither a string nor a number: %w", err)
	}

	if sec, err := n.Int64(); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}

	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid epoch %q", n.String())
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
