package game

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It is the default runtime store and
// the reference implementation for tests: every mutation happens under
// one lock, so each patch is atomic and subscribers observe changes in
// commit order. Snapshots handed out are deep copies and must be
// treated as read-only by subscribers.
type MemStore struct {
	mu      sync.Mutex
	docs    map[string]*Session
	touched map[string]time.Time
	watches *WatchList
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		docs:    make(map[string]*Session),
		touched: make(map[string]time.Time),
		watches: NewWatchList(),
		now:     time.Now,
	}
}

func (m *MemStore) Read(ctx context.Context, code string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[code]
	if !ok {
		return nil, ErrNoSession
	}
	return doc.Clone(), nil
}

func (m *MemStore) WriteNew(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[session.Code]; ok {
		return ErrSessionExists
	}
	doc := session.Clone()
	m.docs[session.Code] = doc
	m.touched[session.Code] = m.now()
	m.watches.Notify(session.Code, doc.Clone())
	return nil
}

func (m *MemStore) Patch(ctx context.Context, code string, patch Patch) error {
	return m.mutate(ctx, code, func(doc *Session) {
		patch.Apply(doc)
	})
}

func (m *MemStore) WritePlayer(ctx context.Context, code string, name PlayerName, player Player) error {
	return m.mutate(ctx, code, func(doc *Session) {
		if doc.Players == nil {
			doc.Players = make(map[PlayerName]Player)
		}
		doc.Players[name] = player
	})
}

func (m *MemStore) DeletePlayer(ctx context.Context, code string, name PlayerName) error {
	return m.mutate(ctx, code, func(doc *Session) {
		delete(doc.Players, name)
	})
}

func (m *MemStore) WriteAnswers(ctx context.Context, code string, name PlayerName, sheet AnswerSheet) error {
	return m.mutate(ctx, code, func(doc *Session) {
		if doc.Answers == nil {
			doc.Answers = make(map[PlayerName]AnswerSheet)
		}
		doc.Answers[name] = sheet
	})
}

func (m *MemStore) DeleteAnswers(ctx context.Context, code string, name PlayerName) error {
	return m.mutate(ctx, code, func(doc *Session) {
		delete(doc.Answers, name)
	})
}

func (m *MemStore) Delete(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[code]; !ok {
		return nil
	}
	delete(m.docs, code)
	delete(m.touched, code)
	m.watches.Notify(code, nil)
	return nil
}

func (m *MemStore) Subscribe(ctx context.Context, code string, onChange func(*Session)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *Session
	if doc, ok := m.docs[code]; ok {
		current = doc.Clone()
	}
	return m.watches.Subscribe(code, current, onChange), nil
}

func (m *MemStore) Sweep(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var swept []string
	for code, at := range m.touched {
		if at.Before(cutoff) {
			delete(m.docs, code)
			delete(m.touched, code)
			m.watches.Notify(code, nil)
			swept = append(swept, code)
		}
	}
	return swept, nil
}

// Close drops all subscribers.
func (m *MemStore) Close() {
	m.watches.Close()
}

func (m *MemStore) mutate(ctx context.Context, code string, fn func(*Session)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[code]
	if !ok {
		return ErrNoSession
	}
	fn(doc)
	m.touched[code] = m.now()
	m.watches.Notify(code, doc.Clone())
	return nil
}
