package yandex

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// Generation parameters are fixed: one non-streaming answer, short and near-deterministic.
const (
	MaxTokens   = 1500
	Temperature = 0.1
)

type message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []message         `json:"messages"`
}

type completionResponse struct {
	Result *struct {
		Alternatives []struct {
			Message *struct {
				Role string  `json:"role"`
				Text *string `json:"text"`
			} `json:"message"`
			Status string `json:"status"`
		} `json:"alternatives"`
		ModelVersion string `json:"modelVersion"`
	} `json:"result"`
}

// Complete sends prompt as a single user turn and returns the text of the first alternative.
func (c *Client) Complete(ctx context.Context, prompt, iamToken string) (string, error) {
	requestID := newRequestID("completion")

	request := completionRequest{
		ModelURI: c.modelURI,
		CompletionOptions: completionOptions{
			Stream:      false,
			MaxTokens:   MaxTokens,
			Temperature: Temperature,
		},
		Messages: []message{
			{Role: "user", Text: prompt},
		},
	}

	c.logger.Debug("preparing completion request",
		"request_id", requestID,
		"model", c.modelURI,
		"prompt_length", len(prompt),
		"max_tokens", MaxTokens)

	body, err := c.postJSON(ctx, requestID, c.completionURL, request, iamToken)
	if err != nil {
		return "", err
	}

	text, version, err := parseCompletion(c.completionURL, body)
	if err != nil {
		c.logger.Error("failed to parse completion response",
			"request_id", requestID,
			"error", err,
			"response_body", truncate(string(body), maxErrorBody))
		return "", err
	}

	c.logger.Info("completion request completed",
		"request_id", requestID,
		"model_version", version,
		"response_length", len(text))

	return text, nil
}

func parseCompletion(endpoint string, body []byte) (string, string, error) {
	var response completionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", "", &apperrors.ResponseShapeError{Endpoint: endpoint, Missing: "json body", Body: truncate(string(body), maxErrorBody), Err: err}
	}

	missing := func(field string) error {
		return &apperrors.ResponseShapeError{Endpoint: endpoint, Missing: field, Body: truncate(string(body), maxErrorBody)}
	}

	if response.Result == nil {
		return "", "", missing("result")
	}
	if len(response.Result.Alternatives) == 0 {
		return "", "", missing("result.alternatives")
	}
	first := response.Result.Alternatives[0]
	if first.Message == nil {
		return "", "", missing("result.alternatives[0].message")
	}
	if first.Message.Text == nil {
		return "", "", missing("result.alternatives[0].message.text")
	}

	return *first.Message.Text, strings.TrimSpace(response.Result.ModelVersion), nil
}
