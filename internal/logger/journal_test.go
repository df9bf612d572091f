package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJournalSilentWithoutWriter(t *testing.T) {
	SetJournalWriter(nil)
	// Must not panic.
	JournalTransition("broker", "SP500/202412/main", 3, "active", "filled", "")
	JournalBreak("SP500/202412", "4", "3")
}

func TestJournalTransitionFormat(t *testing.T) {
	var buf bytes.Buffer
	SetJournalWriter(&buf)
	defer SetJournalWriter(nil)

	JournalTransition("broker", "SP500/202412/main", 3, "active", "filled", "cumulative")
	line := buf.String()
	assert.Contains(t, line, "[TRANSITION]")
	assert.Contains(t, line, "level=broker")
	assert.Contains(t, line, "key=SP500/202412/main")
	assert.Contains(t, line, "id=3")
	assert.Contains(t, line, "from=active")
	assert.Contains(t, line, "to=filled")
	assert.Contains(t, line, "detail=cumulative")
}

func TestJournalBreakFormat(t *testing.T) {
	var buf bytes.Buffer
	SetJournalWriter(&buf)
	defer SetJournalWriter(nil)

	JournalBreak("SP500/202412", "4", "3")
	line := buf.String()
	assert.Contains(t, line, "[BREAK]")
	assert.Contains(t, line, "stacked=4")
	assert.Contains(t, line, "reported=3")
}
