package util

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a random UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// ShortID returns the first block of a fresh UUID, used to tag log lines
func ShortID() string {
	id := uuid.New().String()
	return id[:8]
}
