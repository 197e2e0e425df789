package schema

// ConversationStore is the persistence contract for conversations, their
// message logs, and the derived memory slots (summary + diagnostic state).
//
// Load treats missing or empty summary/state as valid empty defaults so that
// conversations created before the memory subsystem existed keep working.
type ConversationStore interface {
	CreateConversation(owner, title string) (string, error)
	Conversation(id string) (*Conversation, error)
	Conversations(owner string) ([]Conversation, error)
	ConversationIDs() ([]string, error)
	DeleteConversation(id string) error
	UpdateTitle(id, title string) error
	UpdateCLISession(id, sessionID string) error

	// Load returns the full message log plus the persisted memory slots.
	Load(id string) (messages []Message, summary, stateJSON string, err error)
	Messages(id string) ([]Message, error)
	MessagesUpTo(id string, lastMessageID int64) ([]Message, error)

	// SaveTurn appends one exchange and overwrites the memory slots in a
	// single transaction.
	SaveTurn(id string, user, assistant Message, summary, stateJSON string) error
	// SaveMemory overwrites the memory slots only (maintenance fold sweep).
	SaveMemory(id, summary, stateJSON string) error

	LikedEntry(conversationID string, lastMessageID int64) (*LikedEntry, error)
	CreateLikedEntry(conversationID string, lastMessageID int64) error
	UpdateLikedStatus(conversationID string, lastMessageID int64, status LikedStatus, filePath string) error
	DeleteLikedEntry(conversationID string, lastMessageID int64) error
}
