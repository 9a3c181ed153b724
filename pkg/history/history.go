// Package history records the question/answer turns of each conversation.
package history

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidConversationID = errors.New("invalid conversation id")

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateConversationID rejects ids that could not be used as a file name.
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, id)
	}
	return nil
}
