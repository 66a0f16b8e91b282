package game

import (
	"context"
	"testing"
	"time"
)

// newTestService wires a state machine to a fresh in-memory store with
// a ticking fake clock so join order is deterministic.
func newTestService(t *testing.T) (*Service, *MemStore) {
	t.Helper()

	store := NewMemStore()
	t.Cleanup(store.Close)

	svc := NewService(store)
	base := time.Date(2026, time.March, 14, 15, 9, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	store.now = svc.now
	return svc, store
}

func createSession(t *testing.T, svc *Service, host string) *Session {
	t.Helper()

	session, err := svc.Create(context.Background(), host)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func readSession(t *testing.T, svc *Service, code string) *Session {
	t.Helper()

	session, err := svc.store.Read(context.Background(), code)
	if err != nil {
		t.Fatalf("read session %s: %v", code, err)
	}
	return session
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if len(session.Code) != CodeLength {
		t.Fatalf("code = %q, want %d characters", session.Code, CodeLength)
	}
	for _, c := range session.Code {
		if c < 'A' || c > 'Z' {
			t.Fatalf("code = %q, want A-Z only", session.Code)
		}
	}
	if session.Status != StatusWaiting {
		t.Fatalf("status = %s, want waiting", session.Status)
	}
	if session.Host != "Alice" || !session.Players["Alice"].IsHost {
		t.Fatalf("creator is not host: %+v", session)
	}
	if len(session.Categories) == 0 {
		t.Fatal("expected default categories")
	}
}

func TestCreateSessionRejectsBlankName(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), "   "); KindOf(err) != KindInvalidName {
		t.Fatalf("err = %v, want %s", err, KindInvalidName)
	}
}

func TestJoinSession(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if err := svc.Join(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	got := readSession(t, svc, session.Code)
	if len(got.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(got.Players))
	}
	if got.Players["Bob"].IsHost {
		t.Fatal("joining player must not be host")
	}
}

func TestJoinSessionErrors(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if err := svc.Join(context.Background(), "ZZZZZZ", "Bob"); KindOf(err) != KindNotFound {
		t.Fatalf("unknown code err = %v, want %s", err, KindNotFound)
	}
	if err := svc.Join(context.Background(), session.Code, "Alice"); KindOf(err) != KindNameTaken {
		t.Fatalf("taken name err = %v, want %s", err, KindNameTaken)
	}
}

func TestJoinSessionFull(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "P1")
	for _, name := range []string{"P2", "P3", "P4", "P5", "P6"} {
		if err := svc.Join(context.Background(), session.Code, name); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}

	if err := svc.Join(context.Background(), session.Code, "P7"); KindOf(err) != KindSessionFull {
		t.Fatalf("err = %v, want %s", err, KindSessionFull)
	}

	got := readSession(t, svc, session.Code)
	if len(got.Players) != MaxPlayers {
		t.Fatalf("players = %d, want %d unchanged", len(got.Players), MaxPlayers)
	}
}

func TestLeaveSessionTransfersHost(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	for _, name := range []string{"Bob", "Carol"} {
		if err := svc.Join(context.Background(), session.Code, name); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}

	if err := svc.Leave(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	got := readSession(t, svc, session.Code)
	// Bob joined before Carol, so Bob inherits.
	if got.Host != "Bob" {
		t.Fatalf("host = %s, want Bob", got.Host)
	}
	hosts := 0
	for _, player := range got.Players {
		if player.IsHost {
			hosts++
		}
	}
	if hosts != 1 {
		t.Fatalf("players with isHost = %d, want exactly 1", hosts)
	}
	if _, ok := got.Players["Alice"]; ok {
		t.Fatal("departed player still present")
	}
}

func TestLeaveSessionLastPlayerDeletes(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if err := svc.Leave(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, err := svc.store.Read(context.Background(), session.Code); err != ErrNoSession {
		t.Fatalf("read after delete = %v, want ErrNoSession", err)
	}
}

func TestLeaveSessionRemovesAnswers(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.Join(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Bob", map[string]string{"City": "Bonn"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Leave(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	got := readSession(t, svc, session.Code)
	if _, ok := got.Answers["Bob"]; ok {
		t.Fatal("departed player's answers still present")
	}
}

func TestKickPlayer(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.Join(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.Kick(context.Background(), session.Code, "Alice", "Bob"); KindOf(err) != KindNotAuthorized {
		t.Fatalf("non-host kick err = %v, want %s", err, KindNotAuthorized)
	}
	if err := svc.Kick(context.Background(), session.Code, "Mallory", "Alice"); KindOf(err) != KindNotAMember {
		t.Fatalf("absent target err = %v, want %s", err, KindNotAMember)
	}

	if err := svc.Kick(context.Background(), session.Code, "Bob", "Alice"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	got := readSession(t, svc, session.Code)
	if _, ok := got.Players["Bob"]; ok {
		t.Fatal("kicked player still present")
	}
}

func TestUpdateCategories(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.Join(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.UpdateCategories(context.Background(), session.Code, []string{"City", "River"}, "Bob"); KindOf(err) != KindNotAuthorized {
		t.Fatalf("non-host err = %v, want %s", err, KindNotAuthorized)
	}

	tooMany := make([]string, MaxCategories+1)
	for i := range tooMany {
		tooMany[i] = string(rune('A' + i))
	}
	if err := svc.UpdateCategories(context.Background(), session.Code, tooMany, "Alice"); KindOf(err) != KindInvalidCategory {
		t.Fatalf("over limit err = %v, want %s", err, KindInvalidCategory)
	}
	if err := svc.UpdateCategories(context.Background(), session.Code, []string{"City", "City"}, "Alice"); KindOf(err) != KindInvalidCategory {
		t.Fatalf("duplicate err = %v, want %s", err, KindInvalidCategory)
	}

	if err := svc.UpdateCategories(context.Background(), session.Code, []string{"City", "River"}, "Alice"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := readSession(t, svc, session.Code)
	if len(got.Categories) != 2 || got.Categories[0] != "City" || got.Categories[1] != "River" {
		t.Fatalf("categories = %v, want [City River]", got.Categories)
	}
}

func TestStartRound(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := readSession(t, svc, session.Code)
	if got.Status != StatusPlaying {
		t.Fatalf("status = %s, want playing", got.Status)
	}
	if got.CurrentLetter != "B" || got.CurrentRound != 1 {
		t.Fatalf("letter = %s round = %d, want B and 1", got.CurrentLetter, got.CurrentRound)
	}
	if !got.LetterUsed("B") {
		t.Fatal("chosen letter missing from usedLetters")
	}
}

func TestStartRoundLetterValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if err := svc.StartRound(context.Background(), session.Code, "Alice", "BB"); KindOf(err) != KindInvalidLetter {
		t.Fatalf("two chars err = %v, want %s", err, KindInvalidLetter)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "!"); KindOf(err) != KindInvalidLetter {
		t.Fatalf("symbol err = %v, want %s", err, KindInvalidLetter)
	}

	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.EndRound(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "b"); KindOf(err) != KindLetterUsed {
		t.Fatalf("reused letter err = %v, want %s", err, KindLetterUsed)
	}
}

func TestStartRoundExhaustsAlphabet(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	for i := 0; i < 26; i++ {
		if err := svc.StartRound(context.Background(), session.Code, "Alice", ""); err != nil {
			t.Fatalf("start round %d: %v", i+1, err)
		}
		if err := svc.EndRound(context.Background(), session.Code, "Alice"); err != nil {
			t.Fatalf("end round %d: %v", i+1, err)
		}
	}

	got := readSession(t, svc, session.Code)
	if len(got.UsedLetters) != 26 {
		t.Fatalf("usedLetters = %d, want 26 distinct", len(got.UsedLetters))
	}
	seen := make(map[Letter]bool)
	for _, letter := range got.UsedLetters {
		if seen[letter] {
			t.Fatalf("letter %s assigned twice", letter)
		}
		seen[letter] = true
	}

	if err := svc.StartRound(context.Background(), session.Code, "Alice", ""); KindOf(err) != KindAlphabetExhausted {
		t.Fatalf("27th round err = %v, want %s", err, KindAlphabetExhausted)
	}
}

func TestStartRoundRequiresLobbyOrRoundEnd(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")

	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "C"); KindOf(err) != KindInvalidState {
		t.Fatalf("start while playing err = %v, want %s", err, KindInvalidState)
	}
}

func TestRandomCodeFormat(t *testing.T) {
	t.Parallel()

	seen := make(map[byte]bool)
	for i := 0; i < 200; i++ {
		code, err := randomCode()
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if len(code) != CodeLength {
			t.Fatalf("code = %q, want %d characters", code, CodeLength)
		}
		for j := 0; j < len(code); j++ {
			if code[j] < 'A' || code[j] > 'Z' {
				t.Fatalf("code = %q, want A-Z only", code)
			}
			seen[code[j]] = true
		}
	}
	// 1200 uniform draws reach every letter.
	if len(seen) != len(alphabet) {
		t.Fatalf("letters seen = %d, want %d", len(seen), len(alphabet))
	}
}

func TestRandomLetterDrawsOnlyUnused(t *testing.T) {
	t.Parallel()

	var used []Letter
	for i := 0; i < len(alphabet)-3; i++ {
		used = append(used, Letter(alphabet[i:i+1]))
	}

	seen := make(map[Letter]bool)
	for i := 0; i < 500; i++ {
		letter, err := randomLetter(used)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		switch letter {
		case "X", "Y", "Z":
			seen[letter] = true
		default:
			t.Fatalf("draw %d: letter %s is already used", i, letter)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("letters seen = %v, want all of X, Y, Z", seen)
	}
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.Join(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Any participant may pause.
	if err := svc.PauseRound(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got := readSession(t, svc, session.Code)
	if got.Status != StatusPaused || got.PausedBy != "Bob" || got.PausedAt.IsZero() {
		t.Fatalf("pause state = %s/%s/%v", got.Status, got.PausedBy, got.PausedAt)
	}

	// Only the host resumes.
	if err := svc.ResumeRound(context.Background(), session.Code, "Bob"); KindOf(err) != KindNotAuthorized {
		t.Fatalf("non-host resume err = %v, want %s", err, KindNotAuthorized)
	}
	if err := svc.ResumeRound(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got = readSession(t, svc, session.Code)
	if got.Status != StatusPlaying || got.PausedBy != "" || !got.PausedAt.IsZero() {
		t.Fatalf("resume state = %s/%s/%v", got.Status, got.PausedBy, got.PausedAt)
	}

	if err := svc.PauseRound(context.Background(), session.Code, "Mallory"); KindOf(err) != KindNotAMember {
		t.Fatalf("outsider pause err = %v, want %s", err, KindNotAMember)
	}
}

func TestSubmitAnswers(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.UpdateCategories(context.Background(), session.Code, []string{"City", "Country"}, "Alice"); err != nil {
		t.Fatalf("categories: %v", err)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.SubmitAnswers(context.Background(), session.Code, "Alice", map[string]string{"City": "Berlin"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := readSession(t, svc, session.Code)
	if got.Answers["Alice"].Values["City"].Value != "Berlin" {
		t.Fatalf("answers = %+v, want Berlin for City", got.Answers["Alice"])
	}
	if got.Answers["Alice"].SubmittedAt.IsZero() {
		t.Fatal("submittedAt not stamped")
	}

	// A second submission replaces the whole sheet.
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Alice", map[string]string{"Country": "Brazil"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	got = readSession(t, svc, session.Code)
	if got.Answers["Alice"].Values["City"].Value != "" {
		t.Fatal("resubmission did not replace prior sheet")
	}
	if got.Answers["Alice"].Values["Country"].Value != "Brazil" {
		t.Fatalf("answers = %+v, want Brazil for Country", got.Answers["Alice"])
	}
}

func TestSubmitAnswersRequiresPlaying(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Alice", map[string]string{"City": "Berlin"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.EndRound(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("end: %v", err)
	}

	before := readSession(t, svc, session.Code)
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Alice", map[string]string{"City": "Bonn"}); KindOf(err) != KindInvalidState {
		t.Fatalf("submit after round end err = %v, want %s", err, KindInvalidState)
	}
	after := readSession(t, svc, session.Code)
	if len(after.Answers) != len(before.Answers) {
		t.Fatal("rejected submission altered answers")
	}
}

func TestEndRoundScoresIntoHistory(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.Join(context.Background(), session.Code, "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.UpdateCategories(context.Background(), session.Code, []string{"City", "Country"}, "Alice"); err != nil {
		t.Fatalf("categories: %v", err)
	}
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Alice", map[string]string{"City": "Berlin", "Country": "Brazil"}); err != nil {
		t.Fatalf("submit Alice: %v", err)
	}
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Bob", map[string]string{"City": "Berlin"}); err != nil {
		t.Fatalf("submit Bob: %v", err)
	}

	if err := svc.EndRound(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("end: %v", err)
	}

	got := readSession(t, svc, session.Code)
	if got.Status != StatusRoundEnd {
		t.Fatalf("status = %s, want roundEnd", got.Status)
	}
	if len(got.RoundHistory) != 1 {
		t.Fatalf("history = %d records, want 1", len(got.RoundHistory))
	}
	record := got.RoundHistory[0]
	if record.RoundNumber != 1 || record.Letter != "B" {
		t.Fatalf("record = %+v, want round 1 letter B", record)
	}
	if got := record.Answers["Alice"]["City"].Points; got != 5 {
		t.Fatalf("Alice City = %d, want 5", got)
	}
	if got := record.Answers["Alice"]["Country"].Points; got != 20 {
		t.Fatalf("Alice Country = %d, want 20", got)
	}
	if got := record.Answers["Bob"]["City"].Points; got != 5 {
		t.Fatalf("Bob City = %d, want 5", got)
	}
}

func TestEndRoundFromPaused(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.PauseRound(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if err := svc.EndRound(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("end from paused: %v", err)
	}
	got := readSession(t, svc, session.Code)
	if got.Status != StatusRoundEnd || got.PausedBy != "" {
		t.Fatalf("state = %s/%s, want roundEnd with pause cleared", got.Status, got.PausedBy)
	}
}

func TestReturnToLobby(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	session := createSession(t, svc, "Alice")
	if err := svc.StartRound(context.Background(), session.Code, "Alice", "B"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.SubmitAnswers(context.Background(), session.Code, "Alice", map[string]string{"City": "Berlin"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Escape hatch straight from a live round.
	if err := svc.ReturnToLobby(context.Background(), session.Code, "Alice"); err != nil {
		t.Fatalf("return to lobby: %v", err)
	}

	got := readSession(t, svc, session.Code)
	if got.Status != StatusWaiting {
		t.Fatalf("status = %s, want waiting", got.Status)
	}
	if got.CurrentLetter != "" {
		t.Fatalf("letter = %s, want cleared", got.CurrentLetter)
	}
	if len(got.Answers) != 0 {
		t.Fatalf("answers = %d entries, want cleared", len(got.Answers))
	}
	// Used letters never shrink.
	if !got.LetterUsed("B") {
		t.Fatal("usedLetters lost the assigned letter")
	}
}
