package history

import "context"

// SearchFilter narrows admin listings and exports. Zero values match all.
type SearchFilter struct {
	Command string
	UserID  string
	Limit   int
	// Ascending orders by id oldest first; listings default to newest first.
	Ascending bool
}

// CommandCount is one row of the most-used commands table.
type CommandCount struct {
	Command string `json:"command"`
	Count   int    `json:"count"`
}

// Repository defines the interface for command and search history persistence
type Repository interface {
	// SaveLog inserts a command log and sets its ID
	SaveLog(ctx context.Context, l *CommandLog) error

	// LogsByUser returns a user's most recent logs
	LogsByUser(ctx context.Context, userID string, limit int) ([]CommandLog, error)

	// RecentLogs returns the latest logs across all users with their owner
	RecentLogs(ctx context.Context, limit int) ([]CommandLog, error)

	// CountLogs returns the total number of command logs
	CountLogs(ctx context.Context) (int, error)

	// TopCommands groups logs by command, most used first
	TopCommands(ctx context.Context, limit int) ([]CommandCount, error)

	// SaveSearch inserts a search record and sets its ID and UID
	SaveSearch(ctx context.Context, r *SearchRecord) error

	// SearchesByUser returns a user's most recent searches without results
	SearchesByUser(ctx context.Context, userID string, limit int) ([]SearchRecord, error)

	// FindSearch retrieves a full search record with its owner
	FindSearch(ctx context.Context, id int64) (*SearchRecord, error)

	// ListSearches returns records with their owner; results are included
	// only when withResult is set
	ListSearches(ctx context.Context, f SearchFilter, withResult bool) ([]SearchRecord, error)
}
