package module

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxSymbolicNameLen = 128

// SymbolicName is a validated module identifier such as
// "com.example.npm.hello".
type SymbolicName struct {
	value string
}

// NewSymbolicName creates a SymbolicName with strict validation.
// A valid symbolic name must:
// - Be non-empty
// - contain only alphanumeric characters, dots, underscores, and hyphens
// - NOT contain path separators or empty dot segments
// - Be at most 128 characters long
func NewSymbolicName(name string) (SymbolicName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SymbolicName{}, fmt.Errorf("symbolic name cannot be empty")
	}

	if len(name) > maxSymbolicNameLen {
		return SymbolicName{}, fmt.Errorf("symbolic name too long (max %d chars)", maxSymbolicNameLen)
	}

	if strings.ContainsAny(name, `/\`) {
		return SymbolicName{}, fmt.Errorf("symbolic name cannot contain path separators")
	}

	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return SymbolicName{}, fmt.Errorf("symbolic name %q has an empty segment", name)
	}

	for _, ch := range name {
		if !isValidNameChar(ch) {
			return SymbolicName{}, fmt.Errorf("invalid symbolic name %q: must contain only alphanumeric characters, dots, underscores, and hyphens", name)
		}
	}

	return SymbolicName{value: name}, nil
}

func isValidNameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '.' ||
		r == '_' ||
		r == '-'
}

// MustNewSymbolicName creates a SymbolicName or panics
func MustNewSymbolicName(name string) SymbolicName {
	sn, err := NewSymbolicName(name)
	if err != nil {
		panic(err)
	}
	return sn
}

// String returns the string representation
func (s SymbolicName) String() string {
	return s.value
}

// IsEmpty returns true if this is the zero value
func (s SymbolicName) IsEmpty() bool {
	return s.value == ""
}

// MarshalJSON implements json.Marshaler.
func (s SymbolicName) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *SymbolicName) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid symbolic name JSON: %w", err)
	}

	name, err := NewSymbolicName(raw)
	if err != nil {
		return err
	}
	*s = name
	return nil
}
