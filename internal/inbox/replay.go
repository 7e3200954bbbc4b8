package inbox

import (
	"context"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/inboxops/autotag/internal/model"
)

// snapshot is the on-disk shape of a replay file.
type snapshot struct {
	Conversations []replayConversation `yaml:"conversations"`
}

type replayConversation struct {
	model.Conversation `yaml:",inline"`
	Annotation         string `yaml:"annotation,omitempty"`
}

// Replay serves an inbox snapshot loaded from a YAML file. Annotation
// writes are kept in memory and flushed back to the file, so a tagging
// run over a snapshot is inspectable afterwards.
type Replay struct {
	path string

	mu    sync.Mutex
	convs []replayConversation
	index map[string]int
}

// OpenReplay loads a snapshot file.
func OpenReplay(path string) (*Replay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "inbox: read snapshot %s", path)
	}
	var snap snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, eris.Wrapf(err, "inbox: parse snapshot %s", path)
	}

	r := &Replay{path: path, convs: snap.Conversations, index: make(map[string]int)}
	for i, c := range r.convs {
		if c.ID == "" {
			return nil, eris.Errorf("inbox: snapshot %s: conversation %d has no id", path, i)
		}
		if _, dup := r.index[c.ID]; dup {
			return nil, eris.Errorf("inbox: snapshot %s: duplicate conversation id %s", path, c.ID)
		}
		r.index[c.ID] = i
	}
	return r, nil
}

func (r *Replay) ListConversations(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.convs))
	for i, c := range r.convs {
		ids[i] = c.ID
	}
	return ids, nil
}

func (r *Replay) ReadConversation(_ context.Context, id string) (model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return model.Conversation{}, eris.Errorf("inbox: unknown conversation %s", id)
	}
	return r.convs[i].Conversation, nil
}

func (r *Replay) Open(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; !ok {
		return eris.Errorf("inbox: unknown conversation %s", id)
	}
	return nil
}

func (r *Replay) ReadAnnotation(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return "", eris.Errorf("inbox: unknown conversation %s", id)
	}
	return r.convs[i].Annotation, nil
}

func (r *Replay) WriteAnnotation(_ context.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return eris.Errorf("inbox: unknown conversation %s", id)
	}
	r.convs[i].Annotation = text
	return r.flushLocked()
}

// flushLocked writes the current state back to the snapshot file.
// Callers must hold r.mu.
func (r *Replay) flushLocked() error {
	raw, err := yaml.Marshal(snapshot{Conversations: r.convs})
	if err != nil {
		return eris.Wrap(err, "inbox: marshal snapshot")
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return eris.Wrapf(err, "inbox: write snapshot %s", r.path)
	}
	return nil
}
