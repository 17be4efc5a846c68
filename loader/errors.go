package loader

import "errors"

var (
	// ErrInvalidTopic is returned for topic JSON that cannot be decoded or has no posts.
	ErrInvalidTopic = errors.New("invalid discourse topic")

	// ErrNotDirectory is returned when a loader is pointed at a regular file.
	ErrNotDirectory = errors.New("not a directory")
)
