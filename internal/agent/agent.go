package agent

import (
	"context"
	"iter"
	"strings"
)

// Stream is a finite, single-use sequence of response chunks.
type Stream = iter.Seq2[[]byte, error]

// Agent is a knowledge agent answering free-text queries.
// Each invocation is scoped to a caller-supplied session identifier.
type Agent interface {
	Invoke(ctx context.Context, sessionID, query string) (Stream, error)
}

// Collect folds a chunk stream into one string. It stops at the first
// error and returns what was read so far alongside it.
func Collect(stream Stream) (string, error) {
	var sb strings.Builder
	for chunk, err := range stream {
		if err != nil {
			return sb.String(), err
		}
		sb.Write(chunk)
	}
	return sb.String(), nil
}
