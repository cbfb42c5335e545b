package history

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Field caps applied before persistence.
const (
	MaxCommandLength = 100
	MaxTargetLength  = 500
)

// ErrMissingFields is returned when command or target is empty.
var ErrMissingFields = errors.New("missing fields")

// CommandLog records one terminal command a user ran.
type CommandLog struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Command   string    `json:"command"`
	Target    string    `json:"target"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`

	// Set only when listed with the owning user.
	UserEmail string `json:"userEmail,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

// SearchRecord keeps the full result of one successful command.
type SearchRecord struct {
	ID         int64     `json:"id"`
	UID        string    `json:"uid"`
	UserID     string    `json:"userId"`
	Command    string    `json:"command"`
	Target     string    `json:"target"`
	ResultJSON string    `json:"resultJson,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`

	UserEmail string `json:"userEmail,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

// FormatUID renders an auto-increment id as "SR-0000042".
func FormatUID(id int64) string {
	return fmt.Sprintf("SR-%07d", id)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// NewCommandLog validates and truncates the fields of a log entry.
func NewCommandLog(userID, command, target string, success bool) (*CommandLog, error) {
	if strings.TrimSpace(command) == "" || strings.TrimSpace(target) == "" {
		return nil, ErrMissingFields
	}
	return &CommandLog{
		UserID:    userID,
		Command:   truncate(command, MaxCommandLength),
		Target:    truncate(target, MaxTargetLength),
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewSearchRecord validates and truncates the fields of a search record.
// resultJSON must already be encoded; empty becomes "{}".
func NewSearchRecord(userID, command, target, resultJSON string) (*SearchRecord, error) {
	if strings.TrimSpace(command) == "" || strings.TrimSpace(target) == "" {
		return nil, ErrMissingFields
	}
	if resultJSON == "" || resultJSON == "null" {
		resultJSON = "{}"
	}
	return &SearchRecord{
		UserID:     userID,
		Command:    truncate(command, MaxCommandLength),
		Target:     truncate(target, MaxTargetLength),
		ResultJSON: resultJSON,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
