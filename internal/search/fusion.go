package search

import (
	"sort"

	"github.com/vaultscope/vaultscope/internal/store"
)

// candidate is an intermediate hit during fusion and reranking.
type candidate struct {
	match store.Match

	// rrf is the reciprocal-rank-fusion score across both lists.
	rrf float64

	// vecScore is the vector similarity, 0 when the candidate only
	// appeared in keyword results.
	vecScore float64

	vecRank int
	kwRank  int
	inBoth  bool

	// fused is the final weighted score once the cross-encoder ran.
	fused float64
}

// fuseCandidates blends vector and keyword result lists with
// reciprocal rank fusion: score(d) = Σ 1/(k + rank_i). A document
// missing from one list contributes that list's share at rank
// max(len)+1, so single-list hits are penalized but not discarded.
func fuseCandidates(vec, kw []store.Match, rrfK int) []candidate {
	if len(vec) == 0 && len(kw) == 0 {
		return nil
	}

	byID := make(map[string]*candidate, len(vec)+len(kw))

	for rank, m := range vec {
		c := &candidate{match: m, vecScore: m.Score, vecRank: rank + 1}
		c.rrf += 1.0 / float64(rrfK+rank+1)
		byID[m.Chunk.ID] = c
	}
	for rank, m := range kw {
		c, ok := byID[m.Chunk.ID]
		if !ok {
			c = &candidate{match: m}
			byID[m.Chunk.ID] = c
		} else {
			c.inBoth = true
			c.match.MatchedTerms = m.MatchedTerms
		}
		c.kwRank = rank + 1
		c.rrf += 1.0 / float64(rrfK+rank+1)
	}

	missingRank := len(vec)
	if len(kw) > missingRank {
		missingRank = len(kw)
	}
	missingRank++
	for _, c := range byID {
		if c.vecRank == 0 || c.kwRank == 0 {
			c.rrf += 1.0 / float64(rrfK+missingRank)
		}
	}

	out := make([]candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	sortCandidatesByRRF(out)
	return out
}

// sortCandidatesByRRF orders by RRF score, preferring dual-list hits
// and higher vector similarity on ties, with chunk ID as the final
// deterministic tie-break.
func sortCandidatesByRRF(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.rrf != b.rrf {
			return a.rrf > b.rrf
		}
		if a.inBoth != b.inBoth {
			return a.inBoth
		}
		if a.vecScore != b.vecScore {
			return a.vecScore > b.vecScore
		}
		return a.match.Chunk.ID < b.match.Chunk.ID
	})
}

// minMaxNormalize scales scores into [0,1]. A constant list maps to
// all ones so a degenerate scorer neither helps nor hurts.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

// fuseRerankScores computes the final ordering from cross-encoder and
// vector-similarity scores: w·norm(ce) + (1−w)·norm(sim).
func fuseRerankScores(cands []candidate, ceScores []float64, weight float64) {
	sims := make([]float64, len(cands))
	for i, c := range cands {
		sims[i] = c.vecScore
	}
	normCE := minMaxNormalize(ceScores)
	normSim := minMaxNormalize(sims)

	for i := range cands {
		cands[i].fused = weight*normCE[i] + (1-weight)*normSim[i]
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.fused != b.fused {
			return a.fused > b.fused
		}
		if a.vecScore != b.vecScore {
			return a.vecScore > b.vecScore
		}
		return a.match.Chunk.ID < b.match.Chunk.ID
	})
}
