package actions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// record is the on-disk shape of one action. Pointers tell absent (or null)
// keys from empty strings: name, description and code must be present,
// category and generated_code fall back to defaults, id is assigned when absent.
type record struct {
	ID            *string `json:"id,omitempty"`
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Code          *string `json:"code"`
	Category      *string `json:"category"`
	GeneratedCode *string `json:"generated_code"`
}

func encodeActions(actions []Action) ([]byte, error) {
	records := make([]record, len(actions))
	for i := range actions {
		a := &actions[i]
		records[i] = record{
			ID:            &a.ID,
			Name:          &a.Name,
			Description:   &a.Description,
			Code:          &a.Code,
			Category:      &a.Category,
			GeneratedCode: &a.GeneratedCode,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeActions(data []byte) ([]Action, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("top-level value is not a list")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var records []record
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after action list")
	}

	actions := make([]Action, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.Name == nil || r.Description == nil || r.Code == nil {
			return nil, fmt.Errorf("record %d: name, description and code are required", i)
		}

		a := Action{
			Name:        *r.Name,
			Description: *r.Description,
			Code:        *r.Code,
			Category:    DefaultCategory,
		}
		if r.ID != nil {
			a.ID = *r.ID
		}
		if r.Category != nil {
			a.Category = *r.Category
		}
		if r.GeneratedCode != nil {
			a.GeneratedCode = *r.GeneratedCode
		}

		// Records from older files carry no id; hand-edited ones may repeat one
		if a.ID == "" || seen[a.ID] {
			a.ID = uuid.NewString()
		}
		seen[a.ID] = true

		actions = append(actions, a)
	}

	return actions, nil
}
