package boards

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Settings is a free-form JSON object stored with a board.
// A nil Settings encodes as {}. Anything other than a JSON object is rejected.
type Settings map[string]any

// MarshalJSON encodes the settings as a JSON object.
func (s Settings) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(s))
}

// UnmarshalJSON decodes a JSON object. null decodes to empty settings.
func (s *Settings) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = Settings{}
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidSettings)
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	*s = Settings(m)
	return nil
}

// Value implements driver.Valuer.
func (s Settings) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for jsonb or text columns.
func (s *Settings) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Settings{}
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	case map[string]any:
		*s = Settings(v)
		return nil
	default:
		return fmt.Errorf("%w: unsupported source %T", ErrInvalidSettings, src)
	}
}
