package core

import "time"

// Summary is a compact description of a loaded transaction set.
type Summary struct {
	Count int
	First time.Time
	Last  time.Time
}

// Summarize returns the count and the earliest/latest posting dates.
// First and Last are zero for an empty set.
func Summarize(txs []Transaction) Summary {
	s := Summary{Count: len(txs)}
	for i, t := range txs {
		if i == 0 || t.PostedAt.Before(s.First) {
			s.First = t.PostedAt
		}
		if i == 0 || t.PostedAt.After(s.Last) {
			s.Last = t.PostedAt
		}
	}
	return s
}
