package service

import (
	"regexp"
	"strings"

	"erpquery/internal/catalog"
	"erpquery/internal/model"
	"erpquery/internal/utils"
)

// ResolutionTier tells which stage of the resolver produced the candidates
type ResolutionTier string

const (
	TierNone        ResolutionTier = "none"
	TierKnown       ResolutionTier = "known"
	TierSynonym     ResolutionTier = "synonym"
	TierDescriptive ResolutionTier = "descriptive"
	TierCategory    ResolutionTier = "category"
)

const (
	scoreKnown    = 1.0
	scoreSynonym  = 0.9
	scoreCategory = 0.5
)

// Resolution is the ranked output of EntityResolver.Resolve
type Resolution struct {
	Candidates []model.ResolvedEntity
	Tier       ResolutionTier
}

// Best returns the highest scored candidate
func (r Resolution) Best() (model.ResolvedEntity, bool) {
	if len(r.Candidates) == 0 {
		return model.ResolvedEntity{}, false
	}
	return r.Candidates[0], true
}

// Probing reports whether the orchestrator should try candidates until one has data
func (r Resolution) Probing() bool {
	return r.Tier == TierDescriptive || r.Tier == TierCategory
}

// synonymEntry matches single-word terms as substrings of the squashed input
// and multi-word terms as whole phrases of the spaced input.
type synonymEntry struct {
	target  catalog.EntityRef
	terms   []string
	phrases []*regexp.Regexp
}

func (e synonymEntry) matches(squashed, spaced string) bool {
	if utils.ContainsAny(squashed, e.terms...) {
		return true
	}
	for _, p := range e.phrases {
		if p.MatchString(spaced) {
			return true
		}
	}
	return false
}

// phrasePattern matches words in order on word boundaries,
// allowing a plural "s" on the last word.
func phrasePattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(^|[^\pL\pN])` + strings.Join(quoted, `\s+`) + `s?($|[^\pL\pN])`)
}

// EntityResolver maps free-text entity names to catalog entities
type EntityResolver struct {
	catalog  *catalog.Catalog
	known    map[string]catalog.EntityRef
	synonyms []synonymEntry
	ranker   *Ranker
}

// NewEntityResolver indexes the catalog tables once
func NewEntityResolver(c *catalog.Catalog) *EntityResolver {
	r := &EntityResolver{
		catalog: c,
		known:   make(map[string]catalog.EntityRef, len(c.KnownEntities)),
		ranker:  NewRanker(c.Descriptions, c.ServiceTitle),
	}

	for _, k := range c.KnownEntities {
		key := utils.Squash(k.Name)
		if _, dup := r.known[key]; !dup {
			r.known[key] = catalog.EntityRef{Service: k.Service, Entity: k.Entity}
		}
	}

	for _, g := range c.Synonyms {
		if g.Target == nil {
			continue
		}
		entry := synonymEntry{target: *g.Target}
		for _, t := range g.Terms {
			words := strings.Fields(strings.ToLower(t))
			switch len(words) {
			case 0:
			case 1:
				entry.terms = append(entry.terms, words[0])
			default:
				entry.phrases = append(entry.phrases, phrasePattern(words))
			}
		}
		r.synonyms = append(r.synonyms, entry)
	}

	return r
}

// Resolve returns candidates for name, best first.
func (r *EntityResolver) Resolve(name string) Resolution {
	trimmed := strings.TrimSpace(name)
	normalized := utils.Squash(trimmed)
	if normalized == "" {
		return Resolution{Tier: TierNone}
	}

	if ref, ok := r.known[normalized]; ok {
		return Resolution{
			Candidates: []model.ResolvedEntity{r.entity(ref, scoreKnown)},
			Tier:       TierKnown,
		}
	}

	var candidates []model.ResolvedEntity
	seen := make(map[catalog.EntityRef]bool)
	add := func(ref catalog.EntityRef, score float64) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		candidates = append(candidates, r.entity(ref, score))
	}

	spaced := strings.Join(strings.Fields(strings.ToLower(trimmed)), " ")
	tier := TierNone
	for _, s := range r.synonyms {
		if s.matches(normalized, spaced) {
			add(s.target, scoreSynonym)
			tier = TierSynonym
		}
	}

	if tier == TierNone {
		for _, c := range r.ranker.Rank(trimmed) {
			ref := catalog.EntityRef{Service: c.ServiceName, Entity: c.EntityName}
			add(ref, c.Score)
			tier = TierDescriptive
		}
	}

	if utils.ContainsAny(normalized, r.catalog.CategoryFallback.Keywords...) {
		for i, ref := range r.catalog.CategoryFallback.Candidates {
			add(ref, scoreCategory-float64(i)*0.01)
		}
		if tier == TierNone {
			tier = TierCategory
		}
	}

	return Resolution{Candidates: candidates, Tier: tier}
}

func (r *EntityResolver) entity(ref catalog.EntityRef, score float64) model.ResolvedEntity {
	return model.ResolvedEntity{
		ServiceName:  ref.Service,
		EntityName:   ref.Entity,
		ServiceTitle: r.catalog.ServiceTitle(ref.Service),
		Score:        score,
	}
}

// ProbeList returns the default entities tried when probing for data
func (r *EntityResolver) ProbeList() []model.ResolvedEntity {
	out := make([]model.ResolvedEntity, 0, len(r.catalog.ProbeList))
	for _, ref := range r.catalog.ProbeList {
		out = append(out, r.entity(ref, 0))
	}
	return out
}
