package board

import (
	"crypto/rand"
	"sort"

	"hintro-api/domain"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newShareToken returns an opaque 26-character invitation token. Uniqueness is
// enforced by the storage layer's token lookup taking the first match; the
// keyspace makes collisions implausible.
func newShareToken() string {
	buf := make([]byte, 26)
	if _, err := rand.Read(buf); err != nil {
		panic("share token entropy unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf)
}

func sortBoardsNewestFirst(boards []domain.Board) {
	sort.SliceStable(boards, func(i, j int) bool {
		if boards[i].CreatedAt != boards[j].CreatedAt {
			return boards[i].CreatedAt > boards[j].CreatedAt
		}
		return boards[i].ID < boards[j].ID
	})
}
