package game

import (
	"context"
	"crypto/rand"
	"errors"
	"time"
)

// Attempts to draw an unused session code before giving up. The code
// space is 26^6, so hitting this under normal load means the store is
// effectively full.
const maxCodeAttempts = 64

// Service is the session state machine. It validates every transition
// against the current document and the requester's authority before
// issuing a single write, so a rejected operation never mutates the
// store. Concurrent host commands remain a read-check-write race the
// design accepts: the store applies each individual patch atomically
// and last writer wins.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wires the state machine to a session store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create starts a new session with the given participant as sole host
// and the default category set, under a freshly drawn unused code.
func (s *Service) Create(ctx context.Context, hostName string) (*Session, error) {
	host, err := ParsePlayerName(hostName)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, storeError(err)
		}

		session := &Session{
			Code:       code,
			Host:       host,
			Players:    map[PlayerName]Player{host: {IsHost: true, JoinedAt: s.now().UTC()}},
			Categories: DefaultCategories(),
			Status:     StatusWaiting,
			CreatedAt:  s.now().UTC(),
		}

		switch err := s.store.WriteNew(ctx, session); {
		case err == nil:
			return session, nil
		case errors.Is(err, ErrSessionExists):
			continue
		default:
			return nil, storeError(err)
		}
	}
	return nil, newError(KindCodeExhausted, "code")
}

// Join adds a participant to an existing session.
func (s *Service) Join(ctx context.Context, code, rawName string) error {
	name, err := ParsePlayerName(rawName)
	if err != nil {
		return err
	}
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := session.Players[name]; ok {
		return newError(KindNameTaken, string(name))
	}
	if len(session.Players) >= MaxPlayers {
		return newError(KindSessionFull, "players")
	}
	return s.write(s.store.WritePlayer(ctx, session.Code, name, Player{JoinedAt: s.now().UTC()}))
}

// Leave removes a participant. A departing host hands authority to the
// longest-joined remaining player; the last participant to leave
// deletes the session.
func (s *Service) Leave(ctx context.Context, code, rawName string) error {
	name, err := ParsePlayerName(rawName)
	if err != nil {
		return err
	}
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	return s.remove(ctx, session, name)
}

// Kick is Leave on behalf of the host.
func (s *Service) Kick(ctx context.Context, code, rawTarget, rawRequester string) error {
	target, err := ParsePlayerName(rawTarget)
	if err != nil {
		return err
	}
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireHost(session, rawRequester); err != nil {
		return err
	}
	return s.remove(ctx, session, target)
}

func (s *Service) remove(ctx context.Context, session *Session, name PlayerName) error {
	if _, ok := session.Players[name]; !ok {
		return newError(KindNotAMember, string(name))
	}

	if len(session.Players) == 1 {
		return s.write(s.store.Delete(ctx, session.Code))
	}

	if session.Host == name {
		successor := s.successor(session, name)
		host := successor
		if err := s.write(s.store.Patch(ctx, session.Code, Patch{Host: &host})); err != nil {
			return err
		}
		player := session.Players[successor]
		player.IsHost = true
		if err := s.write(s.store.WritePlayer(ctx, session.Code, successor, player)); err != nil {
			return err
		}
	}

	if err := s.write(s.store.DeletePlayer(ctx, session.Code, name)); err != nil {
		return err
	}
	return s.write(s.store.DeleteAnswers(ctx, session.Code, name))
}

// successor picks the remaining player with the earliest join time,
// name as tiebreak, so every replica agrees on the new host.
func (s *Service) successor(session *Session, departing PlayerName) PlayerName {
	for _, name := range session.PlayerNames() {
		if name != departing {
			return name
		}
	}
	return departing
}

// UpdateCategories replaces the category list. Host-only, any state.
func (s *Service) UpdateCategories(ctx context.Context, code string, raw []string, requester string) error {
	categories, err := ParseCategories(raw)
	if err != nil {
		return err
	}
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireHost(session, requester); err != nil {
		return err
	}
	return s.write(s.store.Patch(ctx, session.Code, Patch{Categories: categories}))
}

// StartRound begins a round from the lobby or a round-end screen. An
// empty rawLetter draws uniformly from the unused alphabet; an explicit
// letter must be a single unused A-Z character.
func (s *Service) StartRound(ctx context.Context, code, requester, rawLetter string) error {
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireHost(session, requester); err != nil {
		return err
	}
	if session.Status != StatusWaiting && session.Status != StatusRoundEnd {
		return newError(KindInvalidState, string(session.Status))
	}

	var letter Letter
	if rawLetter != "" {
		letter, err = ParseLetter(rawLetter)
		if err != nil {
			return err
		}
		if session.LetterUsed(letter) {
			return newError(KindLetterUsed, string(letter))
		}
	} else {
		letter, err = randomLetter(session.UsedLetters)
		if err != nil {
			return err
		}
	}

	status := StatusPlaying
	round := session.CurrentRound + 1
	return s.write(s.store.Patch(ctx, session.Code, Patch{
		Status:        &status,
		Letter:        &letter,
		Round:         &round,
		AddUsedLetter: &letter,
		ClearAnswers:  true,
		ClearPause:    true,
	}))
}

// PauseRound suspends a running round. Any participant may pause.
func (s *Service) PauseRound(ctx context.Context, code, rawName string) error {
	name, err := ParsePlayerName(rawName)
	if err != nil {
		return err
	}
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := session.Players[name]; !ok {
		return newError(KindNotAMember, string(name))
	}
	if session.Status != StatusPlaying {
		return newError(KindInvalidState, string(session.Status))
	}

	status := StatusPaused
	at := s.now().UTC()
	return s.write(s.store.Patch(ctx, session.Code, Patch{
		Status:   &status,
		PausedBy: &name,
		PausedAt: &at,
	}))
}

// ResumeRound resumes a paused round. Host-only.
func (s *Service) ResumeRound(ctx context.Context, code, requester string) error {
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireHost(session, requester); err != nil {
		return err
	}
	if session.Status != StatusPaused {
		return newError(KindInvalidState, string(session.Status))
	}

	status := StatusPlaying
	return s.write(s.store.Patch(ctx, session.Code, Patch{
		Status:     &status,
		ClearPause: true,
	}))
}

// SubmitAnswers replaces the participant's whole answer sheet for the
// running round. Last submission wins; there is no partial merge.
func (s *Service) SubmitAnswers(ctx context.Context, code, rawName string, answers map[string]string) error {
	name, err := ParsePlayerName(rawName)
	if err != nil {
		return err
	}
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if session.Status != StatusPlaying {
		return newError(KindInvalidState, string(session.Status))
	}
	if _, ok := session.Players[name]; !ok {
		return newError(KindNotAMember, string(name))
	}

	sheet := AnswerSheet{
		Values:      make(map[Category]Answer, len(session.Categories)),
		SubmittedAt: s.now().UTC(),
	}
	for _, category := range session.Categories {
		sheet.Values[category] = Answer{Value: answers[string(category)]}
	}
	return s.write(s.store.WriteAnswers(ctx, session.Code, name, sheet))
}

// EndRound closes a running or paused round: the answer snapshot is
// scored and appended to history, and that scored record becomes the
// only permanent copy of the round.
func (s *Service) EndRound(ctx context.Context, code, requester string) error {
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireHost(session, requester); err != nil {
		return err
	}
	if session.Status != StatusPlaying && session.Status != StatusPaused {
		return newError(KindInvalidState, string(session.Status))
	}

	record := RoundRecord{
		RoundNumber: session.CurrentRound,
		Letter:      session.CurrentLetter,
		Categories:  append([]Category(nil), session.Categories...),
		Answers:     Score(session.Answers, session.Categories),
		EndedAt:     s.now().UTC(),
	}
	status := StatusRoundEnd
	return s.write(s.store.Patch(ctx, session.Code, Patch{
		Status:        &status,
		AppendHistory: &record,
		ClearPause:    true,
	}))
}

// ReturnToLobby brings the session back to the configuration screen.
// Valid from roundEnd, and as an escape hatch from a live round.
func (s *Service) ReturnToLobby(ctx context.Context, code, requester string) error {
	session, err := s.read(ctx, code)
	if err != nil {
		return err
	}
	if err := s.requireHost(session, requester); err != nil {
		return err
	}
	if session.Status == StatusWaiting {
		return newError(KindInvalidState, string(session.Status))
	}

	status := StatusWaiting
	return s.write(s.store.Patch(ctx, session.Code, Patch{
		Status:       &status,
		ClearLetter:  true,
		ClearAnswers: true,
		ClearPause:   true,
	}))
}

// Watch subscribes to a session's snapshots. The callback receives the
// current document immediately, every committed change afterwards, and
// nil once the document is deleted.
func (s *Service) Watch(ctx context.Context, code string, onChange func(*Session)) (func(), error) {
	cancel, err := s.store.Subscribe(ctx, code, onChange)
	if err != nil {
		return nil, storeError(err)
	}
	return cancel, nil
}

// Sweep deletes sessions idle since before the cutoff.
func (s *Service) Sweep(ctx context.Context, cutoff time.Time) ([]string, error) {
	swept, err := s.store.Sweep(ctx, cutoff)
	if err != nil {
		return nil, storeError(err)
	}
	return swept, nil
}

func (s *Service) read(ctx context.Context, code string) (*Session, error) {
	session, err := s.store.Read(ctx, normalizeCode(code))
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, ErrNoSession):
		return nil, newError(KindNotFound, code)
	default:
		return nil, storeError(err)
	}
}

func (s *Service) write(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoSession):
		return newError(KindNotFound, "session")
	default:
		return storeError(err)
	}
}

func (s *Service) requireHost(session *Session, rawRequester string) error {
	requester, err := ParsePlayerName(rawRequester)
	if err != nil {
		return err
	}
	if _, ok := session.Players[requester]; !ok {
		return newError(KindNotAMember, string(requester))
	}
	if session.Host != requester {
		return newError(KindNotAuthorized, string(requester))
	}
	return nil
}

func randomCode() (string, error) {
	// Bytes above the largest multiple of the alphabet size are
	// rejected, keeping the draw uniform.
	const max = byte(255 - (256 % len(alphabet)))

	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b <= max {
				out = append(out, alphabet[int(b)%len(alphabet)])
				if len(out) == CodeLength {
					return string(out), nil
				}
			}
		}
	}
}

func randomLetter(used []Letter) (Letter, error) {
	available := make([]Letter, 0, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		letter := Letter(alphabet[i : i+1])
		taken := false
		for _, u := range used {
			if u == letter {
				taken = true
				break
			}
		}
		if !taken {
			available = append(available, letter)
		}
	}
	if len(available) == 0 {
		return "", newError(KindAlphabetExhausted, "letter")
	}

	max := byte(255 - (256 % len(available)))
	buf := make([]byte, 8)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", storeError(err)
		}
		for _, b := range buf {
			if b <= max {
				return available[int(b)%len(available)], nil
			}
		}
	}
}
