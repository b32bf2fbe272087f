package app

import (
	"testing"

	"quizroom-service/internal/domain"
)

func singleChoiceQuestion(difficulty domain.Difficulty) domain.Question {
	return domain.Question{
		ID:         "q1",
		Type:       domain.QuestionSingle,
		Prompt:     "pick one",
		Difficulty: difficulty,
		Choices: []domain.Choice{
			{ID: "a", Text: "wrong"},
			{ID: "b", Text: "right", Correct: true},
			{ID: "c", Text: "wrong"},
			{ID: "d", Text: "wrong"},
		},
	}
}

func TestCheckAnswerSingleAndBoolean(t *testing.T) {
	q := singleChoiceQuestion(domain.DifficultyEasy)
	if !CheckAnswer(q, domain.Answer{ChoiceID: "b"}) {
		t.Fatalf("correct choice rejected")
	}
	if CheckAnswer(q, domain.Answer{ChoiceID: "a"}) {
		t.Fatalf("wrong choice accepted")
	}
	if CheckAnswer(q, domain.Answer{}) {
		t.Fatalf("empty answer accepted")
	}

	boolQ := domain.Question{
		Type: domain.QuestionBoolean,
		Choices: []domain.Choice{
			{ID: "true", Correct: true},
			{ID: "false"},
		},
	}
	if !CheckAnswer(boolQ, domain.Answer{ChoiceID: "true"}) {
		t.Fatalf("boolean true rejected")
	}
}

func TestCheckAnswerMultiRequiresExactSet(t *testing.T) {
	q := domain.Question{
		Type: domain.QuestionMulti,
		Choices: []domain.Choice{
			{ID: "a", Correct: true},
			{ID: "b", Correct: true},
			{ID: "c"},
		},
	}
	cases := []struct {
		ids  []string
		want bool
	}{
		{[]string{"a", "b"}, true},
		{[]string{"b", "a"}, true},
		{[]string{"a"}, false},
		{[]string{"a", "b", "c"}, false},
		{[]string{"a", "a"}, false},
		{nil, false},
	}
	for _, c := range cases {
		if got := CheckAnswer(q, domain.Answer{ChoiceIDs: c.ids}); got != c.want {
			t.Fatalf("ids %v: got %v, want %v", c.ids, got, c.want)
		}
	}
}

func TestCheckAnswerShortText(t *testing.T) {
	q := domain.Question{
		Type:     domain.QuestionShortText,
		Answer:   "Paris",
		Accepted: []string{"paris, france"},
	}
	if !CheckAnswer(q, domain.Answer{Text: "  PARIS "}) {
		t.Fatalf("case and whitespace should normalize")
	}
	if !CheckAnswer(q, domain.Answer{Text: "Paris, France"}) {
		t.Fatalf("accepted alternate rejected")
	}
	if CheckAnswer(q, domain.Answer{Text: "London"}) {
		t.Fatalf("wrong text accepted")
	}
	if CheckAnswer(q, domain.Answer{Text: "   "}) {
		t.Fatalf("blank text accepted")
	}
}

func TestCheckAnswerOrdering(t *testing.T) {
	q := domain.Question{
		Type:     domain.QuestionOrdering,
		Ordering: []string{"x", "y", "z"},
	}
	if !CheckAnswer(q, domain.Answer{Ordering: []string{"x", "y", "z"}}) {
		t.Fatalf("exact order rejected")
	}
	if CheckAnswer(q, domain.Answer{Ordering: []string{"x", "z", "y"}}) {
		t.Fatalf("wrong order accepted")
	}
	if CheckAnswer(q, domain.Answer{Ordering: []string{"x", "y"}}) {
		t.Fatalf("short order accepted")
	}
}

func TestCheckAnswerMatching(t *testing.T) {
	q := domain.Question{
		Type: domain.QuestionMatching,
		Pairs: []domain.MatchPair{
			{ID: "m1", Left: "France", Right: "Paris"},
			{ID: "m2", Left: "Japan", Right: "Tokyo"},
		},
	}
	if !CheckAnswer(q, domain.Answer{Matches: map[string]string{"m1": "Paris", "m2": "Tokyo"}}) {
		t.Fatalf("full match rejected")
	}
	if CheckAnswer(q, domain.Answer{Matches: map[string]string{"m1": "Paris", "m2": "Paris"}}) {
		t.Fatalf("partial match accepted")
	}
	if CheckAnswer(q, domain.Answer{Matches: map[string]string{"m1": "Paris"}}) {
		t.Fatalf("missing pair accepted")
	}
}

func TestCheckAnswerFillBlank(t *testing.T) {
	q := domain.Question{
		Type: domain.QuestionFillBlank,
		Blanks: []domain.Blank{
			{ID: "b1", Answer: "Go", Accepted: []string{"golang"}},
			{ID: "b2", Answer: "gopher", CaseSensitive: true},
		},
	}
	ok := CheckAnswer(q, domain.Answer{Blanks: map[string]string{"b1": "GOLANG", "b2": "gopher"}})
	if !ok {
		t.Fatalf("valid blanks rejected")
	}
	// Case-sensitive blank must match exactly.
	if CheckAnswer(q, domain.Answer{Blanks: map[string]string{"b1": "Go", "b2": "Gopher"}}) {
		t.Fatalf("case-sensitive blank matched wrong case")
	}
	if CheckAnswer(q, domain.Answer{Blanks: map[string]string{"b1": "Go"}}) {
		t.Fatalf("missing blank accepted")
	}
}

func TestCalculatePointsIsPure(t *testing.T) {
	q := singleChoiceQuestion(domain.DifficultyMedium)
	s := domain.DefaultRoomSettings()
	a := CalculatePoints(q, true, 5000, 30000, 0, nil, s)
	b := CalculatePoints(q, true, 5000, 30000, 0, nil, s)
	if a != b {
		t.Fatalf("identical inputs gave %d and %d", a, b)
	}
	if a <= 0 {
		t.Fatalf("correct answer scored %d", a)
	}
}

func TestCalculatePointsIncorrectIsZero(t *testing.T) {
	q := singleChoiceQuestion(domain.DifficultyHard)
	s := domain.DefaultRoomSettings()
	if got := CalculatePoints(q, false, 100, 30000, 9, []domain.PowerUpType{domain.PowerUpDoublePoints}, s); got != 0 {
		t.Fatalf("incorrect answer scored %d", got)
	}
}

func TestCalculatePointsDifficultyScales(t *testing.T) {
	s := domain.DefaultRoomSettings()
	s.TimeBonus = false
	s.StreakEnabled = false

	easy := CalculatePoints(singleChoiceQuestion(domain.DifficultyEasy), true, 0, 30000, 0, nil, s)
	medium := CalculatePoints(singleChoiceQuestion(domain.DifficultyMedium), true, 0, 30000, 0, nil, s)
	hard := CalculatePoints(singleChoiceQuestion(domain.DifficultyHard), true, 0, 30000, 0, nil, s)

	if easy != 100 || medium != 150 || hard != 200 {
		t.Fatalf("difficulty scaling: easy=%d medium=%d hard=%d", easy, medium, hard)
	}
}

func TestCalculatePointsTimeBonusFasterIsMore(t *testing.T) {
	q := singleChoiceQuestion(domain.DifficultyEasy)
	s := domain.DefaultRoomSettings()
	s.StreakEnabled = false

	fast := CalculatePoints(q, true, 1000, 30000, 0, nil, s)
	slow := CalculatePoints(q, true, 29000, 30000, 0, nil, s)
	atLimit := CalculatePoints(q, true, 30000, 30000, 0, nil, s)

	if fast <= slow {
		t.Fatalf("fast %d should beat slow %d", fast, slow)
	}
	if atLimit != 100 {
		t.Fatalf("no bonus at the limit, got %d", atLimit)
	}
}

func TestCalculatePointsStreakTiers(t *testing.T) {
	q := singleChoiceQuestion(domain.DifficultyEasy)
	s := domain.DefaultRoomSettings()
	s.TimeBonus = false

	base := CalculatePoints(q, true, 0, 30000, 0, nil, s)
	if base != 100 {
		t.Fatalf("base = %d", base)
	}
	cases := []struct {
		streak int
		want   int
	}{
		{2, 100},  // below first tier
		{3, 120},  // x1.2
		{4, 120},  // still the 3 tier
		{5, 150},  // x1.5
		{7, 180},  // x1.8
		{10, 200}, // x2.0
		{15, 200}, // capped at the top tier
	}
	for _, c := range cases {
		if got := CalculatePoints(q, true, 0, 30000, c.streak, nil, s); got != c.want {
			t.Fatalf("streak %d: got %d, want %d", c.streak, got, c.want)
		}
	}
}

func TestStreakBonusOnlyAtTier(t *testing.T) {
	cases := map[int]int{2: 0, 3: 50, 4: 0, 5: 100, 7: 200, 10: 500, 11: 0}
	for streak, want := range cases {
		if got := StreakBonus(streak); got != want {
			t.Fatalf("streak %d: bonus %d, want %d", streak, got, want)
		}
	}
}

func TestCalculatePointsDoublePoints(t *testing.T) {
	q := singleChoiceQuestion(domain.DifficultyEasy)
	s := domain.DefaultRoomSettings()
	s.TimeBonus = false
	s.StreakEnabled = false

	plain := CalculatePoints(q, true, 0, 30000, 0, nil, s)
	doubled := CalculatePoints(q, true, 0, 30000, 0, []domain.PowerUpType{domain.PowerUpDoublePoints}, s)
	if doubled != plain*2 {
		t.Fatalf("double points: %d vs %d", doubled, plain)
	}
}

func TestAnswerKeyBuckets(t *testing.T) {
	single := singleChoiceQuestion(domain.DifficultyEasy)
	if AnswerKey(single, domain.Answer{ChoiceID: "b"}) != "b" {
		t.Fatalf("single key")
	}

	multi := domain.Question{Type: domain.QuestionMulti}
	k1 := AnswerKey(multi, domain.Answer{ChoiceIDs: []string{"b", "a"}})
	k2 := AnswerKey(multi, domain.Answer{ChoiceIDs: []string{"a", "b"}})
	if k1 != k2 || k1 != "a+b" {
		t.Fatalf("multi key must be order independent, got %q and %q", k1, k2)
	}

	text := domain.Question{Type: domain.QuestionShortText, Answer: "a/b"}
	if key := AnswerKey(text, domain.Answer{Text: "A/B "}); key != "a_b" {
		t.Fatalf("text key must be path safe, got %q", key)
	}
}
