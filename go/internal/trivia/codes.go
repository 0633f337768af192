package trivia

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	codeLength  = 6
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	minNameLen = 2
	maxNameLen = 20
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NewSessionCode generates a human-typeable session code. Uniqueness is
// probabilistic only; codes are not checked against live sessions. Known
// limitation, not a bug.
func NewSessionCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf)
}

// NewPlayerID generates an opaque client-side player identifier. No central
// allocation; collision within a session is improbable enough to ignore.
func NewPlayerID() string {
	return uuid.New().String()
}

// ValidateCode checks the 6-character uppercase alphanumeric code format.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return fmt.Errorf("%w: session code must be 6 uppercase alphanumeric characters", ErrInvalidInput)
	}
	return nil
}

// ValidateName checks player name constraints: 2-20 characters after
// trimming. Uniqueness within a session is checked case-insensitively at
// join time, not here.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minNameLen || len(trimmed) > maxNameLen {
		return fmt.Errorf("%w: player name must be %d-%d characters", ErrInvalidInput, minNameLen, maxNameLen)
	}
	return nil
}

// NormalizeName is the canonical form used for case-insensitive uniqueness
// comparisons.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
