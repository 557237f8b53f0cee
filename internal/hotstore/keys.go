package hotstore

import (
	"fmt"

	"github.com/google/uuid"
)

// dirtySessionsKey holds the set of session ids with unpersisted bids.
const dirtySessionsKey = "dirty_sessions"

func rankingKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("ranking:%s", sessionID)
}

func bidKey(sessionID, userID uuid.UUID) string {
	return fmt.Sprintf("bid:%s:%s", sessionID, userID)
}

func metadataKey(sessionID, userID uuid.UUID) string {
	return fmt.Sprintf("bid_metadata:%s:%s", sessionID, userID)
}

func metadataPattern(sessionID uuid.UUID) string {
	return fmt.Sprintf("bid_metadata:%s:*", sessionID)
}

func paramsKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:params:%s", sessionID)
}

func activeKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:active:%s", sessionID)
}

func userKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}
