package feedback

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/poetry-camera/internal/assets"
)

// Translator maps a canonical status id to primary and secondary text.
type Translator interface {
	Translate(id string) (primary, secondary string)
}

// TableTranslator looks ids up in the embedded bilingual status table.
// Unknown ids are returned as-is in both languages.
type TableTranslator struct {
	table map[string]assets.Bilingual
}

// NewTableTranslator loads the embedded table.
func NewTableTranslator() (*TableTranslator, error) {
	table, err := assets.StatusTable()
	if err != nil {
		return nil, err
	}
	return &TableTranslator{table: table}, nil
}

func (t *TableTranslator) Translate(id string) (string, string) {
	if b, ok := t.table[id]; ok {
		return b.Primary, b.Secondary
	}
	return id, id
}

// Status is the latest rendered status line.
type Status struct {
	ID        string    `json:"id"`
	Primary   string    `json:"primary"`
	Secondary string    `json:"secondary"`
	Phase     Phase     `json:"phase"`
	Remaining int       `json:"remaining,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	At        time.Time `json:"at"`
}

// Text renders "primary / secondary", the way the device screen shows it.
func (s Status) Text() string {
	if s.Primary == s.Secondary {
		return s.Primary
	}
	return s.Primary + " / " + s.Secondary
}

// StatusSink renders events into bilingual status lines, logs them and
// remembers the latest one.
type StatusSink struct {
	tr Translator

	mu     sync.RWMutex
	latest Status
}

// NewStatusSink creates a status sink.
func NewStatusSink(tr Translator) *StatusSink {
	return &StatusSink{tr: tr}
}

func (s *StatusSink) Handle(e Event) {
	id := e.StatusID()
	primary, secondary := s.tr.Translate(id)
	st := Status{
		ID:        id,
		Primary:   primary,
		Secondary: secondary,
		Phase:     e.Phase,
		Remaining: e.Remaining,
		Reason:    e.Reason,
		RunID:     e.RunID,
		At:        e.At,
	}

	s.mu.Lock()
	s.latest = st
	s.mu.Unlock()

	evt := log.Info()
	if e.Phase == Error {
		evt = log.Error()
	}
	if e.Phase == Countdown {
		evt = log.Debug().Int("remaining", e.Remaining)
	}
	evt.Str("runId", e.RunID).Str("status", id).Msg(st.Text())
}

// Latest returns the most recent status.
func (s *StatusSink) Latest() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}
