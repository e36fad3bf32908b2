package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// StringToNullableText converts string to pgtype.Text (nullable)
func StringToNullableText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// PgtextToString converts pgtype.Text to string (NULL becomes "")
func PgtextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// IntToNullableInt4 converts int to pgtype.Int4, treating 0 as NULL
func IntToNullableInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

// PgtypeToInt converts pgtype.Int4 to int (NULL becomes 0)
func PgtypeToInt(i pgtype.Int4) int {
	if !i.Valid {
		return 0
	}
	return int(i.Int32)
}

// PgtypeToTime converts pgtype.Timestamptz to time.Time
func PgtypeToTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// VectorOrNil converts a float32 slice to a pgvector value, nil for an empty slice
func VectorOrNil(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

// parseVector parses the text representation of a pgvector value
func parseVector(s string) ([]float32, error) {
	var v pgvector.Vector
	if err := v.Parse(s); err != nil {
		return nil, fmt.Errorf("failed to parse vector: %w", err)
	}
	return v.Slice(), nil
}
