package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when an entity does not exist in storage.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidTransition is returned when a retry entry is not in a state that
// allows the requested change.
var ErrInvalidTransition = errors.New("invalid retry status transition")

// RetryStatus enumerates the retry entry state machine.
type RetryStatus string

const (
	RetryPending  RetryStatus = "PENDING"
	RetryRetrying RetryStatus = "RETRYING"
	RetrySuccess  RetryStatus = "SUCCESS"
	RetryDead     RetryStatus = "DEAD"
)

// Active reports whether the status still expects work.
func (s RetryStatus) Active() bool {
	return s == RetryPending || s == RetryRetrying
}

// Terminal reports whether the status is final.
func (s RetryStatus) Terminal() bool {
	return s == RetrySuccess || s == RetryDead
}

// ParseRetryStatus accepts case-insensitive status names.
func ParseRetryStatus(value string) (RetryStatus, bool) {
	switch RetryStatus(strings.ToUpper(value)) {
	case RetryPending:
		return RetryPending, true
	case RetryRetrying:
		return RetryRetrying, true
	case RetrySuccess:
		return RetrySuccess, true
	case RetryDead:
		return RetryDead, true
	}
	return "", false
}

// RetryEntry is a durable publish failure for one (article, channel) pair.
type RetryEntry struct {
	ID           string
	ArticleID    string
	Channel      string
	ErrorType    ErrorType
	ErrorMessage string
	RetryCount   int
	NextRetryAt  time.Time
	Status       RetryStatus
	Article      Article
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Exhausted reports whether the entry used up its attempt budget.
func (e RetryEntry) Exhausted(maxRetries int) bool {
	return e.RetryCount >= maxRetries
}
