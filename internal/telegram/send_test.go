package telegram

import (
	"strings"
	"testing"
)

func TestChunkMessage(t *testing.T) {
	if chunks := chunkMessage("hello", 4096); len(chunks) != 1 {
		t.Errorf("short message: %d chunks, want 1", len(chunks))
	}

	exact := strings.Repeat("a", 4096)
	if chunks := chunkMessage(exact, 4096); len(chunks) != 1 {
		t.Errorf("exact limit: %d chunks, want 1", len(chunks))
	}

	long := strings.Repeat("a", 8192)
	if chunks := chunkMessage(long, 4096); len(chunks) != 2 {
		t.Errorf("double limit: %d chunks, want 2", len(chunks))
	}
}

func TestChunkMessageSplitsAtNewline(t *testing.T) {
	msg := []byte(strings.Repeat("a", 5000))
	msg[3000] = '\n'

	chunks := chunkMessage(string(msg), 4096)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	// The split keeps the newline at the end of the first chunk.
	if len(chunks[0]) != 3001 {
		t.Errorf("first chunk length = %d, want 3001", len(chunks[0]))
	}
}
