// Package cluster groups failing test records that are likely to share a
// root cause.
//
// Grouping runs in three stages: ExactGroups buckets records by normalized
// message, MergeSimilar folds near-duplicate buckets together, and
// SortGroups orders the result. Each stage is usable on its own.
package cluster

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kamilpajak/testpulse/internal/normalize"
	"github.com/kamilpajak/testpulse/internal/policy"
	"github.com/kamilpajak/testpulse/pkg/models"
)

// Options holds the two merge heuristics. A heuristic only applies while the
// caller's threshold does not exceed its MaxThreshold, so callers asking for
// near-exact grouping get it.
type Options struct {
	TokenHeavyMinToken     float64 `yaml:"tokenHeavyMinToken"`
	TokenHeavyMinChar      float64 `yaml:"tokenHeavyMinChar"`
	TokenHeavyMaxThreshold float64 `yaml:"tokenHeavyMaxThreshold"`
	CharHeavyMinToken      float64 `yaml:"charHeavyMinToken"`
	CharHeavyMinChar       float64 `yaml:"charHeavyMinChar"`
	CharHeavyMaxThreshold  float64 `yaml:"charHeavyMaxThreshold"`
}

// DefaultOptions returns the tuned heuristic constants.
func DefaultOptions() Options {
	return Options{
		TokenHeavyMinToken:     policy.TokenHeavyMinToken,
		TokenHeavyMinChar:      policy.TokenHeavyMinChar,
		TokenHeavyMaxThreshold: policy.TokenHeavyMaxThreshold,
		CharHeavyMinToken:      policy.CharHeavyMinToken,
		CharHeavyMinChar:       policy.CharHeavyMinChar,
		CharHeavyMaxThreshold:  policy.CharHeavyMaxThreshold,
	}
}

// Clusterer groups failures by message.
type Clusterer struct {
	opts Options
}

// New creates a Clusterer.
func New(opts Options) *Clusterer {
	return &Clusterer{opts: opts}
}

// GroupFailures clusters the failing records with a non-blank message.
// threshold is clamped to [0,1]; at 1.0 only identical normalized messages
// are grouped.
func (c *Clusterer) GroupFailures(records []models.TestRecord, threshold float64) []models.FailureGroup {
	threshold = policy.ClampUnit(threshold, policy.DefaultSimilarityThreshold)
	groups := c.MergeSimilar(ExactGroups(records), threshold)
	SortGroups(groups)
	return groups
}

// ExactGroups buckets failing records by normalized message, in order of
// first appearance. Every group has SimilarityScore 1.
func ExactGroups(records []models.TestRecord) []models.FailureGroup {
	var groups []models.FailureGroup
	byKey := make(map[string]int)
	for _, r := range records {
		if r.Status != models.Fail || !r.HasError() {
			continue
		}
		key := normalize.Message(r.ErrorMessage)
		i, ok := byKey[key]
		if !ok {
			i = len(groups)
			byKey[key] = i
			groups = append(groups, models.FailureGroup{
				Key:                   key,
				RepresentativeMessage: r.ErrorMessage,
				SimilarityScore:       1,
			})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	for i := range groups {
		finalize(&groups[i])
	}
	return groups
}

// MergeSimilar folds near-duplicate groups into the earliest group they
// resemble. A group absorbed by an anchor is never an anchor itself.
func (c *Clusterer) MergeSimilar(groups []models.FailureGroup, threshold float64) []models.FailureGroup {
	if len(groups) < 2 || threshold >= 1 {
		return groups
	}

	tokens := make([]map[string]struct{}, len(groups))
	for i := range groups {
		tokens[i] = tokenSet(groups[i].Key)
	}

	consumed := make([]bool, len(groups))
	out := make([]models.FailureGroup, 0, len(groups))
	for i := range groups {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		merged := groups[i]
		merged.Records = append([]models.TestRecord(nil), groups[i].Records...)

		for j := i + 1; j < len(groups); j++ {
			if consumed[j] {
				continue
			}
			sim, ok := c.similar(groups[i].Key, groups[j].Key, tokens[i], tokens[j], threshold)
			if !ok {
				continue
			}
			consumed[j] = true
			merged.Records = append(merged.Records, groups[j].Records...)
			if sim < merged.SimilarityScore {
				merged.SimilarityScore = sim
			}
		}

		finalize(&merged)
		out = append(out, merged)
	}
	return out
}

// similar decides whether two keys merge and returns the similarity that is
// recorded for the merge, max(char, token).
func (c *Clusterer) similar(a, b string, ta, tb map[string]struct{}, threshold float64) (float64, bool) {
	tok := jaccard(ta, tb)

	tokenHeavy := tok >= c.opts.TokenHeavyMinToken && threshold <= c.opts.TokenHeavyMaxThreshold
	charHeavy := tok >= c.opts.CharHeavyMinToken && threshold <= c.opts.CharHeavyMaxThreshold

	// Skip the edit distance when even the length difference rules it out.
	if tok < threshold {
		need := threshold
		if tokenHeavy && c.opts.TokenHeavyMinChar < need {
			need = c.opts.TokenHeavyMinChar
		}
		if charHeavy && c.opts.CharHeavyMinChar < need {
			need = c.opts.CharHeavyMinChar
		}
		if charUpperBound(a, b) < need {
			return 0, false
		}
	}

	char := CharSimilarity(a, b)
	best := max(char, tok)
	switch {
	case tokenHeavy && char >= c.opts.TokenHeavyMinChar:
		return best, true
	case charHeavy && char >= c.opts.CharHeavyMinChar:
		return best, true
	case best >= threshold:
		return best, true
	}
	return 0, false
}

// charUpperBound bounds CharSimilarity from above using only lengths.
func charUpperBound(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest, diff := max(la, lb), la-lb
	if diff < 0 {
		diff = -diff
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(diff)/float64(longest)
}

func jaccard(ta, tb map[string]struct{}) float64 {
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}

// finalize recomputes the derived fields of a group from its records.
func finalize(g *models.FailureGroup) {
	g.TestCount = len(g.Records)
	g.DomainIDs = distinct(g.Records, func(r models.TestRecord) string { return r.DomainID })
	g.FeatureIDs = distinct(g.Records, func(r models.TestRecord) string { return r.FeatureID })
}

func distinct(records []models.TestRecord, field func(models.TestRecord) string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range records {
		v := field(r)
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SortGroups orders groups by member count descending, then by key.
func SortGroups(groups []models.FailureGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TestCount != groups[j].TestCount {
			return groups[i].TestCount > groups[j].TestCount
		}
		return groups[i].Key < groups[j].Key
	})
}
