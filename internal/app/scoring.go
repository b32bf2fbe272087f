package app

import (
	"sort"
	"strings"

	"quizroom-service/internal/domain"
)

// Scoring parameters. Tier multipliers apply from the tier's streak upward;
// the flat bonus is granted once, when the streak first reaches the tier.
const (
	basePoints          = 100
	timeBonusMultiplier = 2.0
)

var difficultyMultiplier = map[domain.Difficulty]float64{
	domain.DifficultyEasy:   1.0,
	domain.DifficultyMedium: 1.5,
	domain.DifficultyHard:   2.0,
}

// StreakTier grants a score multiplier and a one-time flat bonus.
type StreakTier struct {
	Streak     int
	Multiplier float64
	Bonus      int
}

var streakTiers = []StreakTier{
	{Streak: 3, Multiplier: 1.2, Bonus: 50},
	{Streak: 5, Multiplier: 1.5, Bonus: 100},
	{Streak: 7, Multiplier: 1.8, Bonus: 200},
	{Streak: 10, Multiplier: 2.0, Bonus: 500},
}

// streakMultiplier returns the multiplier of the highest tier at or below
// streak, or 1 when no tier applies.
func streakMultiplier(streak int) float64 {
	m := 1.0
	for _, t := range streakTiers {
		if streak >= t.Streak {
			m = t.Multiplier
		}
	}
	return m
}

// StreakBonus returns the flat bonus for exactly reaching a tier, else 0.
func StreakBonus(streak int) int {
	for _, t := range streakTiers {
		if t.Streak == streak {
			return t.Bonus
		}
	}
	return 0
}

// CheckAnswer grades a submitted answer against the question, dispatching
// on the question type.
func CheckAnswer(q domain.Question, a domain.Answer) bool {
	switch q.Type {
	case domain.QuestionSingle, domain.QuestionBoolean:
		for _, c := range q.Choices {
			if c.ID == a.ChoiceID && c.Correct {
				return true
			}
		}
		return false

	case domain.QuestionMulti:
		correct := make(map[string]bool)
		for _, c := range q.Choices {
			if c.Correct {
				correct[c.ID] = true
			}
		}
		if len(a.ChoiceIDs) != len(correct) {
			return false
		}
		seen := make(map[string]bool, len(a.ChoiceIDs))
		for _, id := range a.ChoiceIDs {
			if !correct[id] || seen[id] {
				return false
			}
			seen[id] = true
		}
		return true

	case domain.QuestionShortText:
		got := normalize(a.Text)
		if got == "" {
			return false
		}
		if got == normalize(q.Answer) {
			return true
		}
		for _, alt := range q.Accepted {
			if got == normalize(alt) {
				return true
			}
		}
		return false

	case domain.QuestionOrdering:
		if len(a.Ordering) != len(q.Ordering) {
			return false
		}
		for i, id := range q.Ordering {
			if a.Ordering[i] != id {
				return false
			}
		}
		return true

	case domain.QuestionMatching:
		if len(q.Pairs) == 0 {
			return false
		}
		for _, p := range q.Pairs {
			if a.Matches[p.ID] != p.Right {
				return false
			}
		}
		return true

	case domain.QuestionFillBlank:
		if len(q.Blanks) == 0 {
			return false
		}
		for _, b := range q.Blanks {
			got, ok := a.Blanks[b.ID]
			if !ok {
				return false
			}
			if b.CaseSensitive {
				if strings.TrimSpace(got) == strings.TrimSpace(b.Answer) {
					continue
				}
				return false
			}
			if normalize(got) == normalize(b.Answer) {
				continue
			}
			matched := false
			for _, alt := range b.Accepted {
				if normalize(got) == normalize(alt) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		return true
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AnswerKey collapses an answer to the bucket it counts toward in the
// per-question distribution.
func AnswerKey(q domain.Question, a domain.Answer) string {
	switch q.Type {
	case domain.QuestionSingle, domain.QuestionBoolean:
		return a.ChoiceID
	case domain.QuestionMulti:
		ids := append([]string(nil), a.ChoiceIDs...)
		sort.Strings(ids)
		return strings.Join(ids, "+")
	case domain.QuestionShortText:
		// Keys become path segments, so slashes must not survive.
		return strings.ReplaceAll(normalize(a.Text), "/", "_")
	case domain.QuestionOrdering:
		return strings.Join(a.Ordering, ">")
	case domain.QuestionMatching, domain.QuestionFillBlank:
		// Too many combinations to bucket usefully; tally correctness only.
		if CheckAnswer(q, a) {
			return "correct"
		}
		return "incorrect"
	}
	return ""
}

// CalculatePoints is a pure function of its inputs: identical inputs always
// yield the identical score. Incorrect answers score zero.
func CalculatePoints(
	q domain.Question,
	correct bool,
	responseMs, timeLimitMs int,
	streak int,
	active []domain.PowerUpType,
	settings domain.RoomSettings,
) int {
	if !correct {
		return 0
	}

	points := float64(basePoints)

	difficulty := q.Difficulty
	if difficulty == "" {
		difficulty = domain.DifficultyMedium
	}
	if m, ok := difficultyMultiplier[difficulty]; ok {
		points *= m
	}

	if settings.TimeBonus && timeLimitMs > 0 {
		ratio := 1 - float64(responseMs)/float64(timeLimitMs)
		if ratio < 0 {
			ratio = 0
		}
		points += points * timeBonusMultiplier * ratio
	}

	if settings.StreakEnabled && streak >= 3 {
		points *= streakMultiplier(streak)
	}

	for _, p := range active {
		if p == domain.PowerUpDoublePoints {
			points *= 2
			break
		}
	}

	return int(points + 0.5)
}
