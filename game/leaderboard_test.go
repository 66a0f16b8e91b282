package game

import "testing"

func scoredRound(number int, answers ScoredAnswers) RoundRecord {
	return RoundRecord{RoundNumber: number, Answers: answers}
}

func TestAggregateEmptyHistoryKeepsPlayerOrder(t *testing.T) {
	t.Parallel()

	standings := Aggregate(nil, nil, []PlayerName{"A", "B"})

	if len(standings) != 2 {
		t.Fatalf("standings = %d entries, want 2", len(standings))
	}
	if standings[0].Player != "A" || standings[0].Total != 0 {
		t.Fatalf("standings[0] = %+v, want A with 0", standings[0])
	}
	if standings[1].Player != "B" || standings[1].Total != 0 {
		t.Fatalf("standings[1] = %+v, want B with 0", standings[1])
	}
}

func TestAggregateSumsRoundsAndCurrent(t *testing.T) {
	t.Parallel()

	history := []RoundRecord{
		scoredRound(1, ScoredAnswers{
			"Alice": {"City": {Value: "Berlin", Points: 20}, "Country": {Value: "Brazil", Points: 5}},
			"Bob":   {"City": {Value: "Bonn", Points: 20}, "Country": {Value: "Brazil", Points: 5}},
		}),
		scoredRound(2, ScoredAnswers{
			"Alice": {"City": {Value: "Cork", Points: 10}},
		}),
	}
	current := ScoredAnswers{
		"Bob": {"City": {Value: "Dresden", Points: 10}},
	}

	standings := Aggregate(history, current, []PlayerName{"Alice", "Bob"})

	if standings[0].Player != "Alice" || standings[0].Total != 35 {
		t.Fatalf("standings[0] = %+v, want Alice with 35", standings[0])
	}
	if standings[1].Player != "Bob" || standings[1].Total != 35 {
		t.Fatalf("standings[1] = %+v, want Bob with 35", standings[1])
	}
	if got := standings[0].Rounds["0"]; got != 25 {
		t.Fatalf("Alice round 0 = %d, want 25", got)
	}
	if got := standings[0].Rounds["1"]; got != 10 {
		t.Fatalf("Alice round 1 = %d, want 10", got)
	}
	if got := standings[1].Rounds[CurrentRoundKey]; got != 10 {
		t.Fatalf("Bob current = %d, want 10", got)
	}
}

func TestAggregateKeepsDepartedPlayers(t *testing.T) {
	t.Parallel()

	history := []RoundRecord{
		scoredRound(1, ScoredAnswers{
			"Ghost": {"City": {Value: "Berlin", Points: 10}},
		}),
	}

	standings := Aggregate(history, nil, []PlayerName{"Alice"})

	if len(standings) != 2 {
		t.Fatalf("standings = %d entries, want 2", len(standings))
	}
	if standings[0].Player != "Ghost" || standings[0].Total != 10 {
		t.Fatalf("standings[0] = %+v, want Ghost with 10", standings[0])
	}
	if standings[1].Player != "Alice" || standings[1].Total != 0 {
		t.Fatalf("standings[1] = %+v, want Alice with 0", standings[1])
	}
}

func TestAggregateSortsByTotalWithStableTies(t *testing.T) {
	t.Parallel()

	history := []RoundRecord{
		scoredRound(1, ScoredAnswers{
			"Alice": {"City": {Points: 5}},
			"Bob":   {"City": {Points: 20}},
			"Carol": {"City": {Points: 5}},
		}),
	}

	standings := Aggregate(history, nil, []PlayerName{"Alice", "Bob", "Carol"})

	if standings[0].Player != "Bob" {
		t.Fatalf("standings[0] = %+v, want Bob first", standings[0])
	}
	// Alice and Carol tie; encounter order from the players list holds.
	if standings[1].Player != "Alice" || standings[2].Player != "Carol" {
		t.Fatalf("tie order = %s, %s, want Alice then Carol",
			standings[1].Player, standings[2].Player)
	}
}

func TestAggregateDepartedTieOrderIsStable(t *testing.T) {
	t.Parallel()

	// Four departed players tie on total; their order must be the same
	// on every call and must not depend on map iteration.
	history := []RoundRecord{
		scoredRound(1, ScoredAnswers{
			"Dana":  {"City": {Points: 10}},
			"Aaron": {"City": {Points: 10}},
			"Cleo":  {"City": {Points: 10}},
			"Bea":   {"City": {Points: 10}},
		}),
	}
	want := []PlayerName{"Aaron", "Bea", "Cleo", "Dana"}

	for run := 0; run < 100; run++ {
		standings := Aggregate(history, nil, nil)
		if len(standings) != len(want) {
			t.Fatalf("standings = %d entries, want %d", len(standings), len(want))
		}
		for i, name := range want {
			if standings[i].Player != name {
				t.Fatalf("run %d: standings[%d] = %s, want %s",
					run, i, standings[i].Player, name)
			}
		}
	}
}

func TestAggregateCurrentRoundTieOrderIsStable(t *testing.T) {
	t.Parallel()

	current := ScoredAnswers{
		"Dana":  {"City": {Points: 5}},
		"Aaron": {"City": {Points: 5}},
		"Cleo":  {"City": {Points: 5}},
	}

	first := Aggregate(nil, current, nil)
	for run := 0; run < 100; run++ {
		again := Aggregate(nil, current, nil)
		for i := range first {
			if again[i].Player != first[i].Player {
				t.Fatalf("run %d: tie order changed: %s vs %s",
					run, again[i].Player, first[i].Player)
			}
		}
	}
}

func TestAggregateMatchesScoreTotals(t *testing.T) {
	t.Parallel()

	answers := map[PlayerName]AnswerSheet{
		"Alice": sheet(map[Category]string{"City": "Berlin", "Country": "Brazil"}),
		"Bob":   sheet(map[Category]string{"City": "Berlin", "Country": "Bolivia"}),
	}
	categories := []Category{"City", "Country"}
	scored := Score(answers, categories)

	standings := Aggregate(nil, scored, []PlayerName{"Alice", "Bob"})

	for _, standing := range standings {
		want := 0
		for _, answer := range scored[standing.Player] {
			want += answer.Points
		}
		if standing.Total != want {
			t.Fatalf("%s total = %d, want %d", standing.Player, standing.Total, want)
		}
	}
}
