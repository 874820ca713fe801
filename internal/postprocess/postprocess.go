package postprocess

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

// DefaultKeywords classify the free-text reasons found in shutdown orders.
// Rules are evaluated in order; the first match wins.
var DefaultKeywords = []config.KeywordRule{
	{When: []string{"exam", "recruitment test", "board test", "paper leak", "cheating"}, Category: string(model.ReasonExam)},
	{When: []string{"violence", "clash", "riot", "communal", "ethnic", "mob"}, Category: string(model.ReasonViolence)},
	{When: []string{"protest", "agitation", "bandh", "farmers", "strike"}, Category: string(model.ReasonProtest)},
	{When: []string{"security", "terror", "militan", "encounter", "law and order", "public safety"}, Category: string(model.ReasonSecurity)},
	{When: []string{"election", "political", "rally", "vote", "government directed"}, Category: string(model.ReasonPolitical)},
}

// DefaultRegionAliases folds provider spellings onto the region vocabulary.
var DefaultRegionAliases = map[string]string{
	"j&k":               "Jammu & Kashmir",
	"jammu and kashmir": "Jammu & Kashmir",
	"kashmir":           "Jammu & Kashmir",
	"nct of delhi":      "Delhi",
	"new delhi":         "Delhi",
	"bengal":            "West Bengal",

	"national capital territory of delhi": "Delhi",
}

type keywordRule struct {
	words    []string
	category model.ReasonCategory
}

type regexRule struct {
	field    string
	re       *regexp.Regexp
	category model.ReasonCategory
}

type mapRule struct {
	field   string
	mapping map[string]string // lower-cased keys
}

// Classifier assigns reason categories and canonical region names to events
// that arrive from external providers.
type Classifier struct {
	kw   []keywordRule
	regs []regexRule
	maps []mapRule
}

// New compiles the configured rules. Configured keyword rules are tried before
// the defaults; region aliases from config extend the default alias table.
func New(cfg config.PostProcessConfig) (*Classifier, error) {
	c := &Classifier{}
	kws := cfg.Keywords
	if !cfg.NoDefaults {
		kws = append(append([]config.KeywordRule{}, cfg.Keywords...), DefaultKeywords...)
	}
	for _, kr := range kws {
		cat := model.ReasonCategory(strings.ToUpper(strings.TrimSpace(kr.Category)))
		if !cat.Valid() {
			return nil, fmt.Errorf("postprocess: keyword rule has unknown category %q", kr.Category)
		}
		words := make([]string, 0, len(kr.When))
		for _, w := range kr.When {
			if s := strings.TrimSpace(w); s != "" {
				words = append(words, strings.ToLower(s))
			}
		}
		if len(words) == 0 {
			continue
		}
		c.kw = append(c.kw, keywordRule{words: words, category: cat})
	}

	for _, rr := range cfg.Regex {
		if strings.TrimSpace(rr.Expr) == "" {
			continue
		}
		re, err := regexp.Compile(rr.Expr)
		if err != nil {
			return nil, fmt.Errorf("postprocess: regex %q: %w", rr.Expr, err)
		}
		cat := model.ReasonCategory(strings.ToUpper(strings.TrimSpace(rr.Category)))
		if !cat.Valid() {
			return nil, fmt.Errorf("postprocess: regex rule has unknown category %q", rr.Category)
		}
		field := strings.ToLower(rr.Field)
		if field == "" {
			field = "reason"
		}
		c.regs = append(c.regs, regexRule{field: field, re: re, category: cat})
	}

	regionMap := mapRule{field: "region", mapping: make(map[string]string)}
	if !cfg.NoDefaults {
		for k, v := range DefaultRegionAliases {
			regionMap.mapping[k] = v
		}
	}
	for _, mr := range cfg.Maps {
		field := strings.ToLower(strings.TrimSpace(mr.Field))
		if field == "" || len(mr.Mapping) == 0 {
			continue
		}
		if field == "region" {
			for k, v := range mr.Mapping {
				regionMap.mapping[strings.ToLower(strings.TrimSpace(k))] = v
			}
			continue
		}
		m := mapRule{field: field, mapping: make(map[string]string, len(mr.Mapping))}
		for k, v := range mr.Mapping {
			m.mapping[strings.ToLower(strings.TrimSpace(k))] = v
		}
		c.maps = append(c.maps, m)
	}
	c.maps = append([]mapRule{regionMap}, c.maps...)
	return c, nil
}

func fieldValue(e *model.ShutdownEvent, name string) string {
	switch name {
	case "reason":
		return e.Reason
	case "region":
		return e.Region
	case "subregion":
		return e.Subregion
	case "source_url", "url":
		return e.SourceURL
	default:
		return ""
	}
}

func setField(e *model.ShutdownEvent, name, v string) {
	switch name {
	case "region":
		e.Region = v
	case "subregion":
		e.Subregion = v
	}
}

// Category classifies a free-text reason. Unmatched text is OTHER.
func (c *Classifier) Category(reason string) model.ReasonCategory {
	ev := model.ShutdownEvent{Reason: reason}
	return c.categorize(&ev)
}

func (c *Classifier) categorize(e *model.ShutdownEvent) model.ReasonCategory {
	for _, rr := range c.regs {
		if v := fieldValue(e, rr.field); v != "" && rr.re.MatchString(v) {
			return rr.category
		}
	}
	reasonLC := strings.ToLower(e.Reason)
	if reasonLC == "" {
		return model.ReasonOther
	}
	for _, kr := range c.kw {
		for _, w := range kr.words {
			if strings.Contains(reasonLC, w) {
				return kr.category
			}
		}
	}
	return model.ReasonOther
}

// Apply folds region aliases and fills reasonCategory where the provider left it
// empty or unknown. A category set by the provider is kept.
func (c *Classifier) Apply(events []model.ShutdownEvent) []model.ShutdownEvent {
	if c == nil || len(events) == 0 {
		return events
	}
	out := make([]model.ShutdownEvent, 0, len(events))
	for _, ev := range events {
		for _, mr := range c.maps {
			val := strings.ToLower(strings.TrimSpace(fieldValue(&ev, mr.field)))
			if val == "" {
				continue
			}
			if mapped, ok := mr.mapping[val]; ok {
				setField(&ev, mr.field, mapped)
			}
		}
		if !ev.ReasonCategory.Valid() || ev.ReasonCategory == model.ReasonOther {
			ev.ReasonCategory = c.categorize(&ev)
		}
		out = append(out, ev)
	}
	return out
}
