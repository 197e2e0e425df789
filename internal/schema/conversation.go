package schema

import "time"

// Conversation is the stored metadata of one chat thread. The message log,
// rolling summary, and diagnostic state live alongside it in the store.
type Conversation struct {
	ID           string
	Owner        string // client identity (gateway remote IP, "local", telegram chat id)
	Title        string
	CLISessionID string // agent CLI session for --resume, may be empty
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LikedStatus tracks the lifecycle of a knowledge-base summarization.
type LikedStatus string

const (
	LikedPending     LikedStatus = "pending"
	LikedSummarizing LikedStatus = "summarizing"
	LikedCompleted   LikedStatus = "completed"
	LikedCancelled   LikedStatus = "cancelled"
)

// LikedEntry is one queued or completed knowledge-base document.
type LikedEntry struct {
	ConversationID string
	LastMessageID  int64
	Status         LikedStatus
	FilePath       string
	CreatedAt      time.Time
}
