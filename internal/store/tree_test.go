package store

import (
	"encoding/json"
	"testing"
)

func TestEntityKey(t *testing.T) {
	cases := []struct {
		path   string
		entity string
		rest   int
	}{
		{"games/r1", "games/r1", 0},
		{"games/r1/players/p1", "games/r1", 2},
		{"roomcodes/ABC123", "roomcodes/ABC123", 0},
		{"games/r1/currentQuestion/answers/p1", "games/r1", 3},
	}
	for _, c := range cases {
		entity, rest := EntityKey(c.path)
		if entity != c.entity {
			t.Fatalf("%s: entity %q, want %q", c.path, entity, c.entity)
		}
		if len(rest) != c.rest {
			t.Fatalf("%s: rest %v, want %d segments", c.path, rest, c.rest)
		}
	}
}

func TestSpliceCreatesIntermediateObjects(t *testing.T) {
	doc, err := Splice(nil, []string{"players", "p1", "score"}, []byte(`42`))
	if err != nil {
		t.Fatalf("splice: %v", err)
	}
	raw, ok := Extract(doc, []string{"players", "p1", "score"})
	if !ok {
		t.Fatalf("expected path to exist")
	}
	var score int
	if err := json.Unmarshal(raw, &score); err != nil || score != 42 {
		t.Fatalf("score = %s, err %v", raw, err)
	}
}

func TestSpliceDeleteRemovesSubtree(t *testing.T) {
	doc, _ := Splice(nil, []string{"players", "p1"}, []byte(`{"score":10}`))
	doc, _ = Splice(doc, []string{"players", "p2"}, []byte(`{"score":20}`))

	doc, err := Splice(doc, []string{"players", "p1"}, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := Extract(doc, []string{"players", "p1"}); ok {
		t.Fatalf("p1 should be gone")
	}
	if _, ok := Extract(doc, []string{"players", "p2"}); !ok {
		t.Fatalf("p2 should survive")
	}
}

func TestSpliceRootReplaceAndDelete(t *testing.T) {
	doc, err := Splice([]byte(`{"a":1}`), nil, []byte(`{"b":2}`))
	if err != nil || string(doc) != `{"b":2}` {
		t.Fatalf("replace: %s, %v", doc, err)
	}
	doc, err = Splice(doc, nil, nil)
	if err != nil || doc != nil {
		t.Fatalf("root delete should yield nil doc, got %s", doc)
	}
}

func TestExtractArrayIndex(t *testing.T) {
	doc := []byte(`{"questions":[{"id":"q0"},{"id":"q1"}]}`)
	raw, ok := Extract(doc, []string{"questions", "1", "id"})
	if !ok {
		t.Fatalf("expected index path to resolve")
	}
	if string(raw) != `"q1"` {
		t.Fatalf("got %s", raw)
	}
	if _, ok := Extract(doc, []string{"questions", "5"}); ok {
		t.Fatalf("out of range index should miss")
	}
}
