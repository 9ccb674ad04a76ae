package transcribe

import (
	"fmt"
	"strings"
	"unicode"
)

// Score compares a transcript with a reference text word by word.
type Score struct {
	WER           float64 // (Substitutions+Insertions+Deletions) / RefWords
	Substitutions int
	Insertions    int
	Deletions     int
	RefWords      int
}

func (s Score) String() string {
	return fmt.Sprintf("WER %.1f%% (%d sub, %d ins, %d del of %d words)",
		s.WER*100, s.Substitutions, s.Insertions, s.Deletions, s.RefWords)
}

// ScoreSegments scores the joined text of segments against reference.
func ScoreSegments(reference string, segments []Segment) Score {
	return WordErrorRate(reference, Text(segments))
}

// WordErrorRate computes the word-level edit distance between reference and
// hypothesis after lowercasing and stripping punctuation.
func WordErrorRate(reference, hypothesis string) Score {
	ref := words(reference)
	hyp := words(hypothesis)
	if len(ref) == 0 {
		return Score{}
	}

	// cost[i][j] is the edit distance between ref[:i] and hyp[:j].
	cost := make([][]int, len(ref)+1)
	for i := range cost {
		cost[i] = make([]int, len(hyp)+1)
		cost[i][0] = i
	}
	for j := range cost[0] {
		cost[0][j] = j
	}
	for i := 1; i <= len(ref); i++ {
		for j := 1; j <= len(hyp); j++ {
			if ref[i-1] == hyp[j-1] {
				cost[i][j] = cost[i-1][j-1]
				continue
			}
			cost[i][j] = 1 + min(cost[i-1][j-1], cost[i-1][j], cost[i][j-1])
		}
	}

	s := Score{RefWords: len(ref)}
	for i, j := len(ref), len(hyp); i > 0 || j > 0; {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i, j = i-1, j-1
		case i > 0 && j > 0 && cost[i][j] == cost[i-1][j-1]+1:
			s.Substitutions++
			i, j = i-1, j-1
		case i > 0 && cost[i][j] == cost[i-1][j]+1:
			s.Deletions++
			i--
		default:
			s.Insertions++
			j--
		}
	}
	s.WER = float64(s.Substitutions+s.Insertions+s.Deletions) / float64(s.RefWords)
	return s
}

func words(s string) []string {
	return strings.Fields(strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s))
}
