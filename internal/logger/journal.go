package logger

import (
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
)

// The journal is a secondary, append-only channel for operator audit:
// order state transitions and position breaks, one block per event.
// It stays silent until SetJournalWriter is given a destination.

var (
	journalMu  sync.Mutex
	journalLog *log.Logger
)

func SetJournalWriter(w io.Writer) {
	journalMu.Lock()
	defer journalMu.Unlock()
	if w == nil {
		journalLog = nil
		return
	}
	journalLog = log.New(w, "", log.LstdFlags)
}

type journalField struct {
	Key   string
	Value string
}

func writeJournal(kind string, fields []journalField) {
	journalMu.Lock()
	jl := journalLog
	journalMu.Unlock()
	if jl == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(kind)
	b.WriteString("]")
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.Value)
	}
	jl.Print(b.String())
}

// JournalTransition records an accepted order state transition.
func JournalTransition(level, key string, id int64, from, to, detail string) {
	fields := []journalField{
		{Key: "level", Value: level},
		{Key: "key", Value: key},
		{Key: "id", Value: formatID(id)},
		{Key: "from", Value: from},
		{Key: "to", Value: to},
	}
	if strings.TrimSpace(detail) != "" {
		fields = append(fields, journalField{Key: "detail", Value: detail})
	}
	writeJournal("TRANSITION", fields)
}

// JournalBreak records a reported external position break.
func JournalBreak(key, stacked, reported string) {
	writeJournal("BREAK", []journalField{
		{Key: "key", Value: key},
		{Key: "stacked", Value: stacked},
		{Key: "reported", Value: reported},
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
