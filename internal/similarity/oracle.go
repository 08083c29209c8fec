// Package similarity scores how alike two tags are. A tag is the string
// "key:value", with multiple values joined by ';'.
package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Oracle scores a pair of tags in [0,1]. ok is false when the oracle has
// no opinion about the pair.
type Oracle interface {
	TagSimilarity(ctx context.Context, a, b string) (score float64, ok bool, err error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, a, b string) (float64, bool, error)

func (f OracleFunc) TagSimilarity(ctx context.Context, a, b string) (float64, bool, error) {
	return f(ctx, a, b)
}

// ExactOracle scores identical tags 1 and everything else 0.
type ExactOracle struct{}

func (ExactOracle) TagSimilarity(_ context.Context, a, b string) (float64, bool, error) {
	if a == b {
		return 1, true, nil
	}
	return 0, true, nil
}

// WordSimilarity scores two words in [0,1].
type WordSimilarity func(a, b string) float64

// ExactWords scores equal words 1 and everything else 0.
func ExactWords(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

// TokenWords scores two words by the Jaccard index of their '_', '-' or
// space separated tokens, so "fast_food" and "food" score 0.5.
func TokenWords(a, b string) float64 {
	if a == b {
		return 1
	}
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}

func tokens(w string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(w), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}) {
		out[t] = struct{}{}
	}
	return out
}

// KeyValueOracle averages the similarity of the two keys and of the two
// values.
type KeyValueOracle struct {
	Words WordSimilarity // nil uses ExactWords
}

func (o KeyValueOracle) TagSimilarity(_ context.Context, a, b string) (float64, bool, error) {
	words := o.Words
	if words == nil {
		words = ExactWords
	}
	k1, v1 := splitTag(a)
	k2, v2 := splitTag(b)
	return (words(k1, k2) + words(v1, v2)) / 2, true, nil
}

func splitTag(tag string) (key, value string) {
	key, value, _ = strings.Cut(tag, ":")
	return key, value
}

// TableOracle looks scores up in a fixed table. Pairs missing from the
// table are absent, except identical tags which score 1.
type TableOracle struct {
	scores map[string]float64
}

// NewTableOracle builds a table from "a|b" keyed scores. Pair order does
// not matter.
func NewTableOracle(scores map[string]float64) (*TableOracle, error) {
	t := &TableOracle{scores: make(map[string]float64, len(scores))}
	for k, v := range scores {
		a, b, ok := strings.Cut(k, "|")
		if !ok {
			return nil, fmt.Errorf("similarity: table key %q is not of the form a|b", k)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("similarity: score %v for %q outside [0,1]", v, k)
		}
		t.scores[pairKey(a, b)] = v
	}
	return t, nil
}

// LoadTable reads a JSON object of "a|b" keyed scores.
func LoadTable(r io.Reader) (*TableOracle, error) {
	var scores map[string]float64
	if err := json.NewDecoder(r).Decode(&scores); err != nil {
		return nil, fmt.Errorf("failed to decode similarity table: %w", err)
	}
	return NewTableOracle(scores)
}

func (t *TableOracle) TagSimilarity(_ context.Context, a, b string) (float64, bool, error) {
	if a == b {
		return 1, true, nil
	}
	v, ok := t.scores[pairKey(a, b)]
	return v, ok, nil
}

// Len returns the number of pairs in the table.
func (t *TableOracle) Len() int {
	return len(t.scores)
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
