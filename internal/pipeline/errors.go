package pipeline

import "errors"

var (
	// ErrNoFiles means traversal found nothing that could be summarized.
	ErrNoFiles = errors.New("no supported files found")
	ErrNoCompleter = errors.New("pipeline: no completer configured")
	// ErrNotCompleted marks a batch that was never finished because the run stopped.
	ErrNotCompleted = errors.New("batch not completed before the run stopped")
)
