package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func now() time.Time {
	return time.Now().UTC()
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding %T: %w", v, err)
	}
	return string(b), nil
}

// encodeList stores nil slices as [] so columns never hold null.
func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	return encodeJSON(v)
}

func decodeList(s string) ([]string, error) {
	if s == "" || s == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func expectOne(affected int64) error {
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// decodeDetails restores string lists to []string so a decoded details map
// compares equal to the one the executor built.
func decodeDetails(s string) (map[string]any, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(s), &details); err != nil {
		return nil, fmt.Errorf("decoding details: %w", err)
	}
	normalizeDetails(details)
	return details, nil
}

func normalizeDetails(details map[string]any) {
	for k, v := range details {
		items, ok := v.([]any)
		if !ok {
			continue
		}
		strs := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				break
			}
			strs = append(strs, s)
		}
		if len(strs) == len(items) {
			details[k] = strs
		}
	}
}
