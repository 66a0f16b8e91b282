package game

import (
	"context"
	"errors"
	"time"
)

// Store errors. The state machine maps these onto its own taxonomy
// before they reach a caller.
var (
	// ErrNoSession indicates no document exists for the code.
	ErrNoSession = errors.New("no such session")
	// ErrSessionExists indicates WriteNew hit an existing code.
	ErrSessionExists = errors.New("session already exists")
)

// Patch is a partial session update. Nil fields are left unchanged;
// the Clear flags remove their field. A patch is applied atomically as
// a single document merge.
type Patch struct {
	Host          *PlayerName
	Status        *Status
	Letter        *Letter
	ClearLetter   bool
	Round         *int
	Categories    []Category
	AddUsedLetter *Letter
	ClearAnswers  bool
	AppendHistory *RoundRecord
	PausedBy      *PlayerName
	PausedAt      *time.Time
	ClearPause    bool
}

// Apply merges the patch into a session in place.
func (p Patch) Apply(session *Session) {
	if p.Host != nil {
		session.Host = *p.Host
	}
	if p.Status != nil {
		session.Status = *p.Status
	}
	if p.Letter != nil {
		session.CurrentLetter = *p.Letter
	}
	if p.ClearLetter {
		session.CurrentLetter = ""
	}
	if p.Round != nil {
		session.CurrentRound = *p.Round
	}
	if p.Categories != nil {
		session.Categories = append([]Category(nil), p.Categories...)
	}
	if p.AddUsedLetter != nil && !session.LetterUsed(*p.AddUsedLetter) {
		session.UsedLetters = append(session.UsedLetters, *p.AddUsedLetter)
	}
	if p.ClearAnswers {
		session.Answers = nil
	}
	if p.AppendHistory != nil {
		session.RoundHistory = append(session.RoundHistory, *p.AppendHistory)
	}
	if p.PausedBy != nil {
		session.PausedBy = *p.PausedBy
	}
	if p.PausedAt != nil {
		session.PausedAt = *p.PausedAt
	}
	if p.ClearPause {
		session.PausedBy = ""
		session.PausedAt = time.Time{}
	}
}

// Store is the session document store: one mutable record per code,
// atomic single-patch merges, no cross-patch transactions. Subscribers
// receive the current value immediately, then every committed change in
// commit order; a nil snapshot means the document is absent or deleted.
type Store interface {
	// Read returns a snapshot of the session, or ErrNoSession.
	Read(ctx context.Context, code string) (*Session, error)

	// WriteNew creates the document, or fails with ErrSessionExists.
	WriteNew(ctx context.Context, session *Session) error

	// Patch merges a partial update, or fails with ErrNoSession.
	Patch(ctx context.Context, code string, patch Patch) error

	// WritePlayer sets one member slot.
	WritePlayer(ctx context.Context, code string, name PlayerName, player Player) error

	// DeletePlayer removes one member slot, if present.
	DeletePlayer(ctx context.Context, code string, name PlayerName) error

	// WriteAnswers sets one participant's answer slot.
	WriteAnswers(ctx context.Context, code string, name PlayerName, sheet AnswerSheet) error

	// DeleteAnswers removes one participant's answer slot, if present.
	DeleteAnswers(ctx context.Context, code string, name PlayerName) error

	// Delete removes the whole document, if present.
	Delete(ctx context.Context, code string) error

	// Subscribe watches the document. The returned cancel func
	// releases the watch.
	Subscribe(ctx context.Context, code string, onChange func(*Session)) (cancel func(), err error)

	// Sweep deletes sessions untouched since before the cutoff and
	// returns their codes.
	Sweep(ctx context.Context, cutoff time.Time) ([]string, error)
}
