package util

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// NewID returns a fresh random job identifier.
func NewID() string {
	return uuid.NewString()
}

// TextToUUID parses a UUID string into pgtype.UUID. The result is invalid
// (SQL NULL) when s is not a UUID.
func TextToUUID(s string) pgtype.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: u, Valid: true}
}

// UUIDToStr formats a pgtype.UUID as a standard hyphenated UUID string.
func UUIDToStr(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
