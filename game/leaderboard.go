package game

import (
	"sort"
	"strconv"
)

// CurrentRoundKey indexes the in-progress round in a Standing's
// per-round breakdown.
const CurrentRoundKey = "current"

// Standing is one participant's cumulative score.
type Standing struct {
	Player PlayerName     `json:"player"`
	Total  int            `json:"total"`
	Rounds map[string]int `json:"rounds"`
}

// Aggregate folds closed rounds plus an optional in-progress round into
// ranked standings. Every name in players is included even at zero;
// participants present only in history keep their contribution after
// departing. Output is sorted by descending total, ties in encounter
// order: the players list first, then history, then current answers,
// with names met through a round folded in name order.
func Aggregate(history []RoundRecord, current ScoredAnswers, players []PlayerName) []Standing {
	order := make([]PlayerName, 0, len(players))
	index := make(map[PlayerName]int, len(players))

	at := func(name PlayerName) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(order)
		order = append(order, name)
		return index[name]
	}

	for _, name := range players {
		at(name)
	}

	standings := make([]Standing, 0, len(players))
	grow := func(i int) *Standing {
		for len(standings) <= i {
			standings = append(standings, Standing{
				Player: order[len(standings)],
				Rounds: make(map[string]int),
			})
		}
		return &standings[i]
	}
	for i := range order {
		grow(i)
	}

	for roundIndex, record := range history {
		key := strconv.Itoa(roundIndex)
		for _, name := range sortedNames(record.Answers) {
			standing := grow(at(name))
			points := sumPoints(record.Answers[name])
			standing.Rounds[key] += points
			standing.Total += points
		}
	}

	for _, name := range sortedNames(current) {
		standing := grow(at(name))
		points := sumPoints(current[name])
		standing.Rounds[CurrentRoundKey] += points
		standing.Total += points
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Total > standings[j].Total
	})
	return standings
}

// sortedNames fixes the fold order for names only history or the
// current round knows about, so encounter order never depends on map
// iteration.
func sortedNames(answers ScoredAnswers) []PlayerName {
	names := make([]PlayerName, 0, len(answers))
	for name := range answers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func sumPoints(byCategory map[Category]ScoredAnswer) int {
	total := 0
	for _, answer := range byCategory {
		total += answer.Points
	}
	return total
}
