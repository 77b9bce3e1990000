package model

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Well-known watermark keys. The values are RFC 3339 timestamps.
const (
	WatermarkLastDigest     = "lastDailyReport"
	WatermarkLastWeekly     = "lastStudentSpecificDailyReport"
	WatermarkLastCumulative = "lastAcumulativeReport"

	cumulativePrefix = "cumulative"
)

// Watermark is a persisted key/value pair.
type Watermark struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CumulativeKey identifies the alerted-count counter for one
// (year, student, message category) triple. The message is hashed and the
// enrolment escaped so that separators inside either cannot collide.
type CumulativeKey struct {
	Year      int
	Student   string
	MessageID string
}

// NewCumulativeKey hashes message with BLAKE2b-256 and keeps the first 16 bytes.
func NewCumulativeKey(year int, student, message string) CumulativeKey {
	sum := blake2b.Sum256([]byte(message))
	return CumulativeKey{
		Year:      year,
		Student:   student,
		MessageID: hex.EncodeToString(sum[:16]),
	}
}

func (k CumulativeKey) String() string {
	return cumulativePrefix + ":" + strconv.Itoa(k.Year) + ":" + url.QueryEscape(k.Student) + ":" + k.MessageID
}

// ParseCumulativeKey is the inverse of CumulativeKey.String.
func ParseCumulativeKey(s string) (CumulativeKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != cumulativePrefix {
		return CumulativeKey{}, fmt.Errorf("not a cumulative watermark key: %q", s)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return CumulativeKey{}, fmt.Errorf("invalid year in key %q: %w", s, err)
	}
	student, err := url.QueryUnescape(parts[2])
	if err != nil {
		return CumulativeKey{}, fmt.Errorf("invalid student in key %q: %w", s, err)
	}
	return CumulativeKey{Year: year, Student: student, MessageID: parts[3]}, nil
}

// FormatTimestamp encodes a timestamp watermark.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp decodes a timestamp watermark.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}

// ParseCount decodes an integer watermark. Blank means zero.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
