package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a random opaque identifier for accounts, entries, and lines.
func New() string {
	return uuid.NewString()
}

// FormatEntryNumber returns an entry number like "2025-01-001".
func FormatEntryNumber(year, month, seq int) string {
	return fmt.Sprintf("%04d-%02d-%03d", year, month, seq)
}

// EntryNumberPrefix returns the "YYYY-MM-" prefix shared by entry numbers in t's month.
func EntryNumberPrefix(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-", t.Year(), int(t.Month()))
}

// ParseEntryNumber parses "2025-01-001" into year, month, seq.
func ParseEntryNumber(number string) (year, month, seq int, err error) {
	parts := strings.SplitN(number, "-", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid entry number format: %q", number)
	}

	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid year in entry number %q: %w", number, err)
	}

	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid month in entry number %q: %w", number, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("month %d out of range in entry number %q", month, number)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid sequence in entry number %q: %w", number, err)
	}

	return year, month, seq, nil
}

// NextEntryNumber returns the number following the highest sequence among
// existing numbers in t's month. Numbers that do not parse are ignored.
func NextEntryNumber(t time.Time, existing []string) string {
	maxSeq := 0
	for _, n := range existing {
		y, m, seq, err := ParseEntryNumber(n)
		if err != nil || y != t.Year() || m != int(t.Month()) {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return FormatEntryNumber(t.Year(), int(t.Month()), maxSeq+1)
}
