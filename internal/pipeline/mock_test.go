package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/inboxops/autotag/internal/model"
	"github.com/inboxops/autotag/pkg/alerts"
)

// fakeInbox implements inbox.Inspector and inbox.Automator in memory.
type fakeInbox struct {
	mu    sync.Mutex
	order []string
	convs map[string]model.Conversation
	notes map[string]string

	// writeFailures makes the next N WriteAnnotation calls fail.
	writeFailures int
	writes        int
}

func newFakeInbox(convs ...model.Conversation) *fakeInbox {
	f := &fakeInbox{
		convs: make(map[string]model.Conversation),
		notes: make(map[string]string),
	}
	for _, c := range convs {
		f.order = append(f.order, c.ID)
		f.convs[c.ID] = c
	}
	return f
}

func (f *fakeInbox) ListConversations(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...), nil
}

func (f *fakeInbox) ReadConversation(_ context.Context, id string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return model.Conversation{}, eris.Errorf("unknown conversation %s", id)
	}
	return c, nil
}

func (f *fakeInbox) Open(context.Context, string) error { return nil }

func (f *fakeInbox) ReadAnnotation(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes[id], nil
}

func (f *fakeInbox) WriteAnnotation(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeFailures > 0 {
		f.writeFailures--
		return eris.New("transient write failure")
	}
	f.notes[id] = text
	return nil
}

// fakePanels resolves names against a fixed alias table.
type fakePanels struct {
	byName map[string]model.Resolution
}

func (f *fakePanels) Resolve(_ context.Context, rawName string) (model.Resolution, bool) {
	res, ok := f.byName[rawName]
	return res, ok
}

// fakeLetters simulates the resolver: unknown URLs queue up, and any
// registered OnAllResolved callback applies the prepared decisions
// before firing, as if a human answered while the pipeline waited.
type fakeLetters struct {
	mu        sync.Mutex
	known     map[string]string
	decisions map[string]string
	queued    []string
	inQueue   map[string]bool
}

func newFakeLetters(known map[string]string) *fakeLetters {
	if known == nil {
		known = make(map[string]string)
	}
	return &fakeLetters{
		known:     known,
		decisions: make(map[string]string),
		inQueue:   make(map[string]bool),
	}
}

func (f *fakeLetters) GetLetter(_ context.Context, url, _ string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.known[url]; ok {
		return l, true, nil
	}
	if !f.inQueue[url] {
		f.inQueue[url] = true
		f.queued = append(f.queued, url)
	}
	return "", false, nil
}

func (f *fakeLetters) Peek(_ context.Context, url string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.known[url]
	return l, ok, nil
}

func (f *fakeLetters) OnAllResolved(fn func()) {
	f.mu.Lock()
	for _, url := range f.queued {
		if l, ok := f.decisions[url]; ok {
			f.known[url] = l
		}
	}
	f.queued = nil
	f.inQueue = make(map[string]bool)
	f.mu.Unlock()
	fn()
}

func (f *fakeLetters) QueueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued)
}

// fakeAudit records audit writes.
type fakeAudit struct {
	mu    sync.Mutex
	saved map[string]string
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{saved: make(map[string]string)}
}

func (f *fakeAudit) SaveAudit(_ context.Context, code, panelName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.saved[code]; !ok {
		f.saved[code] = panelName
	}
	return nil
}

// fakeAlerter records sent alerts.
type fakeAlerter struct {
	mu   sync.Mutex
	sent []alerts.Alert
}

func (f *fakeAlerter) Send(_ context.Context, alert alerts.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, alert)
	return nil
}
