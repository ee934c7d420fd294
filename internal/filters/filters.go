package filters

import (
	"sort"
	"strings"

	"github.com/roach88/hearth/internal/model"
)

// Config is the declarative include/exclude selection. Empty slices mean
// "no opinion"; an entirely empty config admits everything.
type Config struct {
	IncludeDomains     []string `yaml:"include_domains" json:"include_domains"`
	IncludeEntityGlobs []string `yaml:"include_entity_globs" json:"include_entity_globs"`
	IncludeEntities    []string `yaml:"include_entities" json:"include_entities"`
	ExcludeDomains     []string `yaml:"exclude_domains" json:"exclude_domains"`
	ExcludeEntityGlobs []string `yaml:"exclude_entity_globs" json:"exclude_entity_globs"`
	ExcludeEntities    []string `yaml:"exclude_entities" json:"exclude_entities"`
}

// Filter is a compiled Config. Zero value admits everything.
type Filter struct {
	includeDomains  map[string]struct{}
	includeEntities map[string]struct{}
	includeGlobs    []string
	excludeDomains  map[string]struct{}
	excludeEntities map[string]struct{}
	excludeGlobs    []string
}

// New compiles a Config into a Filter.
func New(cfg Config) *Filter {
	return &Filter{
		includeDomains:  toSet(cfg.IncludeDomains),
		includeEntities: toSet(cfg.IncludeEntities),
		includeGlobs:    cfg.IncludeEntityGlobs,
		excludeDomains:  toSet(cfg.ExcludeDomains),
		excludeEntities: toSet(cfg.ExcludeEntities),
		excludeGlobs:    cfg.ExcludeEntityGlobs,
	}
}

func toSet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// HasConfig reports whether any include or exclude rule is present.
func (f *Filter) HasConfig() bool {
	if f == nil {
		return false
	}
	return len(f.includeDomains) > 0 || len(f.includeEntities) > 0 ||
		len(f.includeGlobs) > 0 || len(f.excludeDomains) > 0 ||
		len(f.excludeEntities) > 0 || len(f.excludeGlobs) > 0
}

// Matches decides whether an entity id passes the filter. Exact entity rules
// beat glob rules beat domain rules; within a tier an exclude beats an
// include. With only includes configured, everything unmatched is rejected;
// with only excludes, everything unmatched is admitted.
func (f *Filter) Matches(entityID string) bool {
	if !f.HasConfig() {
		return true
	}
	if _, ok := f.includeEntities[entityID]; ok {
		return true
	}
	if _, ok := f.excludeEntities[entityID]; ok {
		return false
	}
	if matchAnyGlob(f.excludeGlobs, entityID) {
		return false
	}
	if matchAnyGlob(f.includeGlobs, entityID) {
		return true
	}
	domain := model.Domain(entityID)
	if _, ok := f.excludeDomains[domain]; ok {
		return false
	}
	if _, ok := f.includeDomains[domain]; ok {
		return true
	}

	// No rule matched: admit unless the config is include-only, in which
	// case unlisted entities are out.
	hasInclude := len(f.includeEntities) > 0 || len(f.includeGlobs) > 0 ||
		len(f.includeDomains) > 0
	return !hasInclude
}

// SQLPredicate renders the filter as a predicate over an entity-id column,
// for maintenance queries that sweep states_meta rather than checking rows
// in process. Globs translate to LIKE with '*' as '%' and '?' as '_';
// literal LIKE metacharacters are escaped.
func (f *Filter) SQLPredicate(column string) (string, []any) {
	if !f.HasConfig() {
		return "1", nil
	}

	var includes, excludes []string
	var args []any

	appendSets := func(clauses *[]string, entities map[string]struct{}, globs []string, domains map[string]struct{}) {
		if len(entities) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entities)), ",")
			*clauses = append(*clauses, column+" IN ("+placeholders+")")
			for _, e := range sortedKeys(entities) {
				args = append(args, e)
			}
		}
		for _, g := range globs {
			*clauses = append(*clauses, column+" LIKE ? ESCAPE '\\'")
			args = append(args, globToLike(g))
		}
		for _, d := range sortedKeys(domains) {
			*clauses = append(*clauses, column+" LIKE ? ESCAPE '\\'")
			args = append(args, escapeLike(d)+".%")
		}
	}

	appendSets(&includes, f.includeEntities, f.includeGlobs, f.includeDomains)
	appendSets(&excludes, f.excludeEntities, f.excludeGlobs, f.excludeDomains)

	switch {
	case len(includes) > 0 && len(excludes) > 0:
		return "((" + strings.Join(includes, " OR ") + ") AND NOT (" +
			strings.Join(excludes, " OR ") + "))", args
	case len(includes) > 0:
		return "(" + strings.Join(includes, " OR ") + ")", args
	default:
		return "NOT (" + strings.Join(excludes, " OR ") + ")", args
	}
}

func matchAnyGlob(globs []string, entityID string) bool {
	for _, g := range globs {
		if matchGlob(g, entityID) {
			return true
		}
	}
	return false
}

// matchGlob matches '*' (any run) and '?' (any single character); no
// character classes.
func matchGlob(pattern, s string) bool {
	// Iterative backtracking over the single-star case.
	var starP, starS = -1, 0
	p, i := 0, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			starP, starS = p, i
			p++
		case starP >= 0:
			starS++
			p, i = starP+1, starS
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

func globToLike(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	// Deterministic predicate text and args regardless of map order.
	sort.Strings(keys)
	return keys
}
