// Package scoring implements ImportanceScorer (spec.md §4.2): content
// importance and retrieval-ranking scores. Pattern tables are grounded on
// the keyword/regex bonus tables the teacher's chunker used to classify
// conversational content, generalized here into a configurable table.
package scoring

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/text/cases"

	"memoria/internal/config"
)

// fold case-folds a string the Unicode-aware way (distinguishing this from
// strings.ToLower's ASCII-biased behavior, e.g. Turkish dotless i), used
// throughout this package's case-insensitive keyword matching.
var fold = cases.Fold()

func foldString(s string) string {
	return fold.String(s)
}

// Scorer computes importance and retrieval scores from a configured
// pattern/weight table.
type Scorer struct {
	cfg      config.ScoringConfig
	compiled []compiledPattern
}

type compiledPattern struct {
	config.PatternConfig
	regexes []*regexp.Regexp
}

// New compiles a Scorer's pattern table once up front.
func New(cfg config.ScoringConfig) *Scorer {
	s := &Scorer{cfg: cfg}
	for _, p := range cfg.Patterns {
		cp := compiledPattern{PatternConfig: p}
		for _, r := range p.Regexes {
			if re, err := regexp.Compile(r); err == nil {
				cp.regexes = append(cp.regexes, re)
			}
		}
		s.compiled = append(s.compiled, cp)
	}
	return s
}

// reingestContext is the subset of update_document's context map this
// package reads back out via mapstructure instead of repeated manual type
// assertions (grounded on the teacher's tools/templates handlers, which
// decode caller-supplied maps the same way).
type reingestContext struct {
	PreservedImportance *float64 `mapstructure:"preserved_importance"`
}

// Calculate computes importance in [0,1] from content, caller metadata, and
// optional context, per spec.md §4.2's five summed terms. A context
// carrying preserved_importance (set by UpdateService.UpdateContent when
// the caller asked to keep the old score across a content replacement)
// short-circuits the rest of the formula and returns that score directly.
func (s *Scorer) Calculate(content string, metadata, context map[string]interface{}) float64 {
	if context != nil {
		var reingest reingestContext
		if err := mapstructure.Decode(context, &reingest); err == nil && reingest.PreservedImportance != nil {
			return clamp01(*reingest.PreservedImportance)
		}
	}

	score := s.lengthTerm(content)
	score += s.patternBonuses(content)
	score += s.contextBonus(context)
	score += s.permanenceBoost(content, metadata)
	score += s.explicitPermanenceRequest(context)

	score = clamp01(score)

	if isExplicitlyNotImportant(context) && score > s.cfg.NonImportantCap {
		score = s.cfg.NonImportantCap
	}
	return score
}

func (s *Scorer) lengthTerm(content string) float64 {
	if s.cfg.LengthNormalization <= 0 {
		return 0
	}
	return math.Min(float64(len(content))/s.cfg.LengthNormalization, s.cfg.MaxLengthScore)
}

func (s *Scorer) patternBonuses(content string) float64 {
	var total float64
	for _, p := range s.compiled {
		total += matchScore(p, content)
	}
	return total
}

// matchScore evaluates one pattern's match_mode against content.
func matchScore(p compiledPattern, content string) float64 {
	haystack := content
	if !p.CaseSensitive {
		haystack = foldString(haystack)
	}

	total := len(p.Keywords) + len(p.regexes)
	if total == 0 {
		return 0
	}

	matches := 0
	for _, kw := range p.Keywords {
		needle := kw
		if !p.CaseSensitive {
			needle = foldString(needle)
		}
		if strings.Contains(haystack, needle) {
			matches++
		}
	}
	for _, re := range p.regexes {
		if re.MatchString(content) {
			matches++
		}
	}

	switch p.MatchMode {
	case "all":
		if matches == total {
			return p.Bonus
		}
		return 0
	case "weighted":
		return p.Bonus * (float64(matches) / float64(total))
	default: // "any"
		if matches > 0 {
			return p.Bonus
		}
		return 0
	}
}

// contextBonus adds a pattern's bonus when the caller's context names it
// (e.g. context["technical"] = true).
func (s *Scorer) contextBonus(context map[string]interface{}) float64 {
	if context == nil {
		return 0
	}
	var total float64
	for _, p := range s.compiled {
		if v, ok := context[p.Name]; ok && truthy(v) {
			total += p.Bonus
		}
	}
	return total
}

// permanenceBoost combines keyword triggers with explicit metadata flags
// against the configured boost table, capped at 1.0.
func (s *Scorer) permanenceBoost(content string, metadata map[string]interface{}) float64 {
	var total float64
	lower := foldString(content)
	for keyword, boost := range s.cfg.PermanenceBoosts {
		if strings.Contains(lower, keyword) {
			total += boost
		}
	}

	if metadata != nil {
		if flag, ok := metadata["permanence_flag"]; ok {
			if boost, known := s.cfg.PermanenceBoosts[toString(flag)]; known {
				total += boost
			}
		}
		if typ, ok := metadata["type"]; ok {
			if boost, known := s.cfg.PermanenceBoosts[toString(typ)]; known {
				total += boost
			}
		}
	}

	return math.Min(total, 1.0)
}

func (s *Scorer) explicitPermanenceRequest(context map[string]interface{}) float64 {
	if context == nil {
		return 0
	}
	if v, ok := context["explicit_permanence_request"]; ok && truthy(v) {
		return s.cfg.ExplicitPermanenceBoost
	}
	return 0
}

func isExplicitlyNotImportant(context map[string]interface{}) bool {
	if context == nil {
		return false
	}
	v, ok := context["is_important"]
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return isBool && !b
}

// RetrievalInput carries the per-hit signals RetrievalScore weighs.
type RetrievalInput struct {
	Distance    float64 // cosine distance, 1 - similarity
	LastAccess  time.Time
	Now         time.Time
	AccessCount int
	Importance  float64
}

// RetrievalScore implements spec.md §4.2's ranking formula.
func (s *Scorer) RetrievalScore(in RetrievalInput) float64 {
	semantic := 1 - in.Distance
	deltaT := in.Now.Sub(in.LastAccess).Seconds()
	recency := math.Exp(-deltaT / s.cfg.RecencyDecayConstant)
	frequency := math.Min(float64(in.AccessCount)/s.cfg.MaxAccessCount, 1.0)

	return s.cfg.WeightSemantic*semantic +
		s.cfg.WeightRecency*recency +
		s.cfg.WeightFrequency*frequency +
		s.cfg.WeightImportance*in.Importance
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return v != nil
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
