package board

import (
	"strings"
	"testing"

	"hintro-api/domain"
)

func TestNewShareTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok := newShareToken()
		if len(tok) != 26 {
			t.Fatalf("unexpected token length %d", len(tok))
		}
		for _, r := range tok {
			if !strings.ContainsRune(tokenAlphabet, r) {
				t.Fatalf("token %q contains %q outside the alphabet", tok, r)
			}
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestSortBoardsNewestFirst(t *testing.T) {
	boards := []domain.Board{
		{ID: "a", CreatedAt: 1},
		{ID: "c", CreatedAt: 3},
		{ID: "b", CreatedAt: 3},
	}
	sortBoardsNewestFirst(boards)
	if boards[0].ID != "b" || boards[1].ID != "c" || boards[2].ID != "a" {
		t.Fatalf("unexpected order %+v", boards)
	}
}
