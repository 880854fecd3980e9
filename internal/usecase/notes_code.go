package usecase

import (
	"crypto/rand"
	"io"
	"strings"
)

const notesCodeLength = 8

// generateNotesCode creates a random, human-readable transfer reference.
// The charset avoids ambiguous characters like O/0, I/1.
func generateNotesCode() (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	buffer := make([]byte, notesCodeLength)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}
	for i := range buffer {
		buffer[i] = chars[int(buffer[i])%len(chars)]
	}
	return string(buffer), nil
}

// normalizeNotesCode trims a caller-supplied reference. Case is kept.
func normalizeNotesCode(code string) string { return strings.TrimSpace(code) }
