// Package match scores page results against caller-supplied target
// addresses and reports the outcome to an external sink.
package match

import (
	"math"
	"strings"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// MinScore is the similarity floor below which a candidate pairing is
// discarded.
const MinScore = 0.9

// Match pairs a page result with the target address it matched.
type Match struct {
	Record model.ResultRecord
	Target string
	Score  float64
}

// Best scans merged page records against the targets and returns the
// single best-scoring pairing on the page, if any. A pairing survives
// only when its token cosine similarity is at least MinScore and its
// leading token (the street number) matches the target's exactly. Ties
// keep whichever pairing was encountered first, so iteration order is
// part of the contract.
func Best(records []model.ResultRecord, targets []string) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, rec := range records {
		recTokens := tokenize(rec.Address)
		if len(recTokens) == 0 {
			continue
		}
		for _, target := range targets {
			targetTokens := tokenize(target)
			if len(targetTokens) == 0 || targetTokens[0] != recTokens[0] {
				continue
			}
			score := cosine(recTokens, targetTokens)
			if score < MinScore {
				continue
			}
			if !found || score > best.Score {
				best = Match{Record: rec, Target: target, Score: score}
				found = true
			}
		}
	}
	return best, found
}

// Score exposes the raw similarity between two address strings.
func Score(a, b string) float64 {
	return cosine(tokenize(a), tokenize(b))
}

// tokenize lower-cases, splits on whitespace and strips punctuation
// stuck to token edges, so "123 Main St, Houston" and "123 main st
// houston" tokenize identically.
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.;:#()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func termFreq(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}

// cosine computes cosine similarity over term-frequency vectors.
func cosine(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	va, vb := termFreq(a), termFreq(b)

	var dot, na, nb float64
	for tok, ca := range va {
		if cb, ok := vb[tok]; ok {
			dot += float64(ca) * float64(cb)
		}
		na += float64(ca) * float64(ca)
	}
	for _, cb := range vb {
		nb += float64(cb) * float64(cb)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
