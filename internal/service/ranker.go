package service

import (
	"regexp"
	"sort"
	"strings"

	"erpquery/internal/catalog"
	"erpquery/internal/model"
	"erpquery/internal/utils"
)

// Descriptive-match scoring
const (
	ScoreExactMatch     = 5.0
	ScoreFuzzyBase      = 3.0
	FuzzyMatchThreshold = 0.7
	MaxRankedCandidates = 25
)

// Ranker scores entries of the descriptive catalog against a free-text entity name
type Ranker struct {
	descriptions []catalog.Description
	patterns     []*regexp.Regexp
	titles       func(service string) string
}

// NewRanker precompiles the word-boundary pattern of each description
func NewRanker(descriptions []catalog.Description, titles func(service string) string) *Ranker {
	patterns := make([]*regexp.Regexp, len(descriptions))
	for i, d := range descriptions {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(d.Title)) + `\b`)
	}
	return &Ranker{descriptions: descriptions, patterns: patterns, titles: titles}
}

// Rank returns matching entities, best first.
//
// A title occurring in the input on word boundaries scores ScoreExactMatch.
// Otherwise the whitespace-insensitive similarity against the title and the
// entity set name is taken; at or above FuzzyMatchThreshold it scores
// ScoreFuzzyBase+similarity. Entries are deduplicated by (service, entity),
// ties keep catalog order, and at most MaxRankedCandidates are returned.
func (r *Ranker) Rank(input string) []model.ResolvedEntity {
	squashed := utils.Squash(input)
	if squashed == "" {
		return nil
	}

	type scored struct {
		ref   catalog.EntityRef
		score float64
		order int
	}
	best := make(map[catalog.EntityRef]*scored)
	var results []*scored

	for i, d := range r.descriptions {
		score := r.score(i, input, squashed)
		if score == 0 {
			continue
		}
		ref := catalog.EntityRef{Service: d.Service, Entity: d.Entity}
		if existing, ok := best[ref]; ok {
			if score > existing.score {
				existing.score = score
			}
			continue
		}
		s := &scored{ref: ref, score: score, order: i}
		best[ref] = s
		results = append(results, s)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].order < results[j].order
	})

	if len(results) > MaxRankedCandidates {
		results = results[:MaxRankedCandidates]
	}

	out := make([]model.ResolvedEntity, len(results))
	for i, s := range results {
		out[i] = model.ResolvedEntity{
			ServiceName:  s.ref.Service,
			EntityName:   s.ref.Entity,
			ServiceTitle: r.titles(s.ref.Service),
			Score:        s.score,
		}
	}
	return out
}

func (r *Ranker) score(i int, input, squashed string) float64 {
	d := r.descriptions[i]
	if r.patterns[i].MatchString(input) {
		return ScoreExactMatch
	}

	sim := utils.Similarity(squashed, utils.Squash(d.Title))
	if s := utils.Similarity(squashed, strings.ToLower(stripEntityPrefix(d.Entity))); s > sim {
		sim = s
	}
	if sim >= FuzzyMatchThreshold {
		return ScoreFuzzyBase + sim
	}
	return 0
}

// stripEntityPrefix drops the A_/I_/C_ namespace prefix of entity set names
func stripEntityPrefix(entity string) string {
	if len(entity) > 2 && entity[1] == '_' {
		return entity[2:]
	}
	return entity
}
