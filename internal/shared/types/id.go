package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a UUID wrapper for type safety
type ID string

// NewID generates a new random ID
func NewID() ID {
	return ID(uuid.New().String())
}

// NewDeterministicID derives a stable ID from a namespace and a name.
// Seed data uses it so that reruns land on the same rows.
func NewDeterministicID(namespace, name string) ID {
	return ID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+":"+name)).String())
}

// ParseID parses a string into an ID
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID: %w", err)
	}
	return ID(u.String()), nil
}

// MustParseID parses a string into an ID, panics on error
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsZero checks if the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// Ptr returns a pointer to a copy of id, or nil for the zero ID
func (id ID) Ptr() *ID {
	if id.IsZero() {
		return nil
	}
	return &id
}

// SameAs reports whether the optional ID other is set and equal to id
func (id ID) SameAs(other *ID) bool {
	return other != nil && !id.IsZero() && *other == id
}

// Value implements driver.Valuer for database serialization
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return string(id), nil
}

// Scan implements sql.Scanner for database deserialization
func (id *ID) Scan(value any) error {
	if value == nil {
		*id = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*id = ID(v)
	case []byte:
		*id = ID(string(v))
	case [16]byte:
		*id = ID(uuid.UUID(v).String())
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	return nil
}
