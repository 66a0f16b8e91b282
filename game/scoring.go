package game

import "strings"

// Point awards per category:
//
//	10: sole contributor of a non-blank answer
//	20: unique answer among multiple contributors
//	 5: answer shared with at least one other contributor
//	 0: blank or missing answer
const (
	PointsSole   = 10
	PointsUnique = 20
	PointsShared = 5
)

// Score awards points for one round's answer snapshot. Each category is
// scored independently: answers are trimmed, blanks ignored, and
// contributors grouped by exact equality of the trimmed text. The
// result covers every submitting participant and every category, keeps
// the original answer text, and is deterministic regardless of
// participant order.
func Score(answers map[PlayerName]AnswerSheet, categories []Category) ScoredAnswers {
	scored := make(ScoredAnswers, len(answers))
	for name, sheet := range answers {
		byCategory := make(map[Category]ScoredAnswer, len(categories))
		for _, category := range categories {
			byCategory[category] = ScoredAnswer{Value: sheet.Values[category].Value}
		}
		scored[name] = byCategory
	}

	for _, category := range categories {
		groups := make(map[string][]PlayerName)
		contributors := 0
		for name, sheet := range answers {
			text := strings.TrimSpace(sheet.Values[category].Value)
			if text == "" {
				continue
			}
			groups[text] = append(groups[text], name)
			contributors++
		}

		for _, members := range groups {
			points := PointsShared
			switch {
			case len(members) == 1 && contributors == 1:
				points = PointsSole
			case len(members) == 1:
				points = PointsUnique
			}
			for _, name := range members {
				entry := scored[name][category]
				entry.Points = points
				scored[name][category] = entry
			}
		}
	}

	return scored
}
