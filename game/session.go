// Package game implements the categories word game: the session data
// model, the lifecycle state machine, the scoring engine, and the
// leaderboard aggregator. Persistence is injected through the Store
// contract so the core stays testable without a running server.
package game

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// CodeLength is the fixed length of a session code.
	CodeLength = 6

	// MaxPlayers caps concurrent participants per session.
	MaxPlayers = 6

	// MaxCategories caps the host-edited category list.
	MaxCategories = 10

	maxNameRunes     = 32
	maxCategoryRunes = 40

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// normalizeCode case-normalizes a session code the way it was minted.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusRoundEnd Status = "roundEnd"
)

// DefaultCategories is the category set a new session starts with.
func DefaultCategories() []Category {
	return []Category{"City", "Country", "River", "Name", "Animal", "Profession"}
}

// PlayerName is a participant's self-chosen display name, unique within
// a session and compared exactly as typed.
type PlayerName string

// ParsePlayerName validates a display name.
func ParsePlayerName(raw string) (PlayerName, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameRunes {
		return "", newError(KindInvalidName, "name")
	}
	return PlayerName(name), nil
}

// Category is one labeled answer slot, e.g. "City".
type Category string

// ParseCategory validates a single category label.
func ParseCategory(raw string) (Category, error) {
	label := strings.TrimSpace(raw)
	if label == "" || utf8.RuneCountInString(label) > maxCategoryRunes {
		return "", newError(KindInvalidCategory, "category")
	}
	return Category(label), nil
}

// ParseCategories validates a full category list: every label valid,
// no duplicates, at most MaxCategories entries.
func ParseCategories(raw []string) ([]Category, error) {
	if len(raw) > MaxCategories {
		return nil, newError(KindInvalidCategory, "categories")
	}
	seen := make(map[Category]bool, len(raw))
	categories := make([]Category, 0, len(raw))
	for _, label := range raw {
		category, err := ParseCategory(label)
		if err != nil {
			return nil, err
		}
		if seen[category] {
			return nil, newError(KindInvalidCategory, "categories")
		}
		seen[category] = true
		categories = append(categories, category)
	}
	return categories, nil
}

// Letter is a single uppercase A-Z character.
type Letter string

// ParseLetter validates and case-normalizes a letter.
func ParseLetter(raw string) (Letter, error) {
	letter := strings.ToUpper(strings.TrimSpace(raw))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return "", newError(KindInvalidLetter, "letter")
	}
	return Letter(letter), nil
}

// Player is one session member.
type Player struct {
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Answer is one free-text answer for one category.
type Answer struct {
	Value string `json:"value"`
}

// AnswerSheet is one participant's full answer set for the in-progress
// round. A resubmission replaces the whole sheet.
type AnswerSheet struct {
	Values      map[Category]Answer `json:"values"`
	SubmittedAt time.Time           `json:"submittedAt"`
}

// ScoredAnswer pairs an answer's original text with its point award.
type ScoredAnswer struct {
	Value  string `json:"value"`
	Points int    `json:"points"`
}

// ScoredAnswers maps participant and category to a scored answer.
type ScoredAnswers map[PlayerName]map[Category]ScoredAnswer

// RoundRecord is one closed round's immutable snapshot.
type RoundRecord struct {
	RoundNumber int           `json:"roundNumber"`
	Letter      Letter        `json:"letter"`
	Categories  []Category    `json:"categories"`
	Answers     ScoredAnswers `json:"answers"`
	EndedAt     time.Time     `json:"endedAt"`
}

// Session is the single authoritative record for one game.
type Session struct {
	Code          string                     `json:"code"`
	Host          PlayerName                 `json:"host"`
	Players       map[PlayerName]Player      `json:"players"`
	Categories    []Category                 `json:"categories"`
	Status        Status                     `json:"status"`
	CurrentLetter Letter                     `json:"currentLetter,omitempty"`
	CurrentRound  int                        `json:"currentRound"`
	UsedLetters   []Letter                   `json:"usedLetters"`
	Answers       map[PlayerName]AnswerSheet `json:"answers,omitempty"`
	RoundHistory  []RoundRecord              `json:"roundHistory"`
	PausedBy      PlayerName                 `json:"pausedBy,omitempty"`
	PausedAt      time.Time                  `json:"pausedAt,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// PlayerNames returns the member names ordered by join time, ties
// broken by name. This is also the deterministic host-transfer order.
func (s *Session) PlayerNames() []PlayerName {
	names := make([]PlayerName, 0, len(s.Players))
	for name := range s.Players {
		names = append(names, name)
	}
	sortPlayers(names, s.Players)
	return names
}

func sortPlayers(names []PlayerName, players map[PlayerName]Player) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && playerBefore(names[j], names[j-1], players); j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

func playerBefore(a, b PlayerName, players map[PlayerName]Player) bool {
	pa, pb := players[a], players[b]
	if !pa.JoinedAt.Equal(pb.JoinedAt) {
		return pa.JoinedAt.Before(pb.JoinedAt)
	}
	return a < b
}

// LetterUsed reports whether the letter was already assigned.
func (s *Session) LetterUsed(letter Letter) bool {
	for _, used := range s.UsedLetters {
		if used == letter {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so store snapshots never alias live state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = make(map[PlayerName]Player, len(s.Players))
	for name, player := range s.Players {
		out.Players[name] = player
	}
	out.Categories = append([]Category(nil), s.Categories...)
	out.UsedLetters = append([]Letter(nil), s.UsedLetters...)
	if s.Answers != nil {
		out.Answers = make(map[PlayerName]AnswerSheet, len(s.Answers))
		for name, sheet := range s.Answers {
			copied := sheet
			copied.Values = make(map[Category]Answer, len(sheet.Values))
			for category, answer := range sheet.Values {
				copied.Values[category] = answer
			}
			out.Answers[name] = copied
		}
	}
	out.RoundHistory = make([]RoundRecord, 0, len(s.RoundHistory))
	for _, record := range s.RoundHistory {
		copied := record
		copied.Categories = append([]Category(nil), record.Categories...)
		copied.Answers = record.Answers.clone()
		out.RoundHistory = append(out.RoundHistory, copied)
	}
	return &out
}

func (sa ScoredAnswers) clone() ScoredAnswers {
	if sa == nil {
		return nil
	}
	out := make(ScoredAnswers, len(sa))
	for name, byCategory := range sa {
		copied := make(map[Category]ScoredAnswer, len(byCategory))
		for category, answer := range byCategory {
			copied[category] = answer
		}
		out[name] = copied
	}
	return out
}
