package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/ticket"
)

// parseFields decodes model output into Fields. Output that is not a JSON object is
// searched for the span between the first '{' and the last '}'.
// Non-string or blank values are treated as absent.
func parseFields(content string) (ticket.Fields, error) {
	obj, err := decodeObject(content)
	if err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start == -1 || end <= start {
			return ticket.Fields{}, fmt.Errorf("%w: no JSON object in output", domain.ErrMalformedResponse)
		}
		if obj, err = decodeObject(content[start : end+1]); err != nil {
			return ticket.Fields{}, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
		}
	}

	return ticket.Fields{
		Summary:  stringField(obj, "summary"),
		Category: stringField(obj, "category"),
		Severity: stringField(obj, "severity"),
		Notes:    stringField(obj, "notes"),
		Source:   ticket.SourceModel,
	}, nil
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("model output is not an object")
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return ticket.Ptr(strings.TrimSpace(s))
}
