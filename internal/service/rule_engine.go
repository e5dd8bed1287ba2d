package service

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
)

// DefaultMaskingRules is the built-in restricted-term policy.
func DefaultMaskingRules() []domain.MaskingRule {
	return []domain.MaskingRule{
		{Pattern: `\b(casino|gambl\w*|betting|bet365|poker|roulette|jackpot)\b`, Priority: 100},
		{Pattern: `\b(lottery|lotto|sweepstake\w*)\b`, Replacement: "Subscription Payment", Priority: 90},
		{Pattern: `\b(crypto\w*|bitcoin|btc|ethereum|usdt)\b`, Replacement: "Digital Goods", Priority: 80},
		{Pattern: `\b(adult|escort|xxx)\b`, Priority: 70},
		{Pattern: `\b(forex|binary\s+option\w*)\b`, Replacement: "Professional Services", Priority: 60},
	}
}

// DefaultSafeLabels are the descriptions a flagged label is replaced with.
func DefaultSafeLabels() []string {
	return []string{
		"Online Services",
		"Digital Goods",
		"Subscription Payment",
		"Professional Services",
		"E-commerce Purchase",
	}
}

// DefaultPartyNames are the business names a flagged party name is replaced with.
func DefaultPartyNames() []string {
	return []string{
		"TechServe Solutions",
		"Digital Hub Services",
		"Prime Retail Ventures",
		"Metro Commerce Pvt Ltd",
		"Nova Consulting Group",
	}
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
	priority    int
}

// RuleEngineImpl implements ports.RuleEngine.
type RuleEngineImpl struct {
	rules      []compiledRule
	labels     []string
	partyNames []string
	refSuffix  bool
	rnd        ports.RandomSource
}

// RuleEngineOptions configures NewRuleEngine. Empty slices select the defaults.
type RuleEngineOptions struct {
	Rules           []domain.MaskingRule
	Labels          []string
	PartyNames      []string
	ReferenceSuffix bool
	Random          ports.RandomSource
}

// NewRuleEngine compiles the rules (case-insensitive) and sorts them by
// descending priority. Rules of equal priority keep their configured order.
func NewRuleEngine(opts RuleEngineOptions) (*RuleEngineImpl, error) {
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultMaskingRules()
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultSafeLabels()
	}
	names := opts.PartyNames
	if len(names) == 0 {
		names = DefaultPartyNames()
	}
	rnd := opts.Random
	if rnd == nil {
		rnd = NewMathRandSource()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling masking rule %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{re: re, replacement: r.Replacement, priority: r.Priority})
	}
	sort.SliceStable(compiled, func(i, j int) bool { return compiled[i].priority > compiled[j].priority })

	return &RuleEngineImpl{
		rules:      compiled,
		labels:     labels,
		partyNames: names,
		refSuffix:  opts.ReferenceSuffix,
		rnd:        rnd,
	}, nil
}

// IsRestricted reports whether any rule matches text.
func (e *RuleEngineImpl) IsRestricted(text string) bool {
	_, ok := e.match(text)
	return ok
}

// MaskDescription replaces the whole of a flagged description with a safe
// label. Unflagged text passes through unchanged.
func (e *RuleEngineImpl) MaskDescription(text string) string {
	rule, ok := e.match(text)
	if !ok {
		return text
	}
	label := rule.replacement
	if label == "" {
		label = e.labels[e.rnd.Intn(len(e.labels))]
	}
	if e.refSuffix {
		label = fmt.Sprintf("%s - Ref #%06d", label, 100000+e.rnd.Intn(900000))
	}
	return label
}

// MaskPartyName replaces a flagged party name with an alternate business name.
func (e *RuleEngineImpl) MaskPartyName(text string) string {
	if _, ok := e.match(text); !ok {
		return text
	}
	return e.partyNames[e.rnd.Intn(len(e.partyNames))]
}

// SafeLabels returns every label MaskDescription can produce, without suffix.
func (e *RuleEngineImpl) SafeLabels() []string {
	out := append([]string(nil), e.labels...)
	for _, r := range e.rules {
		if r.replacement != "" {
			out = append(out, r.replacement)
		}
	}
	return out
}

// PartyNames returns every name MaskPartyName can produce.
func (e *RuleEngineImpl) PartyNames() []string {
	return append([]string(nil), e.partyNames...)
}

// match evaluates every rule and returns the highest-priority hit.
func (e *RuleEngineImpl) match(text string) (compiledRule, bool) {
	if strings.TrimSpace(text) == "" {
		return compiledRule{}, false
	}
	var (
		best  compiledRule
		found bool
	)
	for _, r := range e.rules {
		if r.re.MatchString(text) && !found {
			best, found = r, true
		}
	}
	return best, found
}

type mathRandSource struct{}

// NewMathRandSource returns a RandomSource backed by math/rand/v2.
func NewMathRandSource() ports.RandomSource {
	return mathRandSource{}
}

func (mathRandSource) Intn(n int) int {
	return rand.IntN(n)
}
