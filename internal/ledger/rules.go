package ledger

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Category labels of the default rule table
const (
	CategoryFood      = "식비"
	CategoryVehicle   = "자동차유지비"
	CategoryTelecom   = "통신비"
	CategoryBeauty    = "미용"
	CategoryBooks     = "도서"
	CategoryEvents    = "경조사"
	CategoryAllowance = "용돈"
	CategoryInsurance = "보험"
	CategoryChildcare = "육아"
	CategoryOther     = "기타"
)

// Rule assigns Category to any usage text matching Pattern
type Rule struct {
	Category string
	Pattern  *regexp.Regexp
}

// Categorizer evaluates rules in order; the first match wins
type Categorizer struct {
	rules    []Rule
	fallback string
}

var defaultRules = []Rule{
	{CategoryFood, regexp.MustCompile(`편의점|식당|마차|배달|김밥|카페|커피|식사|밥|이츠|쿠팡이츠`)},
	{CategoryVehicle, regexp.MustCompile(`주유|세차|하이패스|톨게이트|자동차|캐피탈|오일`)},
	{CategoryTelecom, regexp.MustCompile(`SKT|KT|LGU|통신`)},
	{CategoryBeauty, regexp.MustCompile(`미용|이발|파마|네일|왁싱|에스테틱`)},
	{CategoryBooks, regexp.MustCompile(`도서|문구|서점|책`)},
	{CategoryEvents, regexp.MustCompile(`결혼|장례|경조|부의|축의`)},
	{CategoryAllowance, regexp.MustCompile(`용돈|송금|현금`)},
	{CategoryInsurance, regexp.MustCompile(`보험|실비|건강보험`)},
	{CategoryChildcare, regexp.MustCompile(`기저귀|분유|육아|아기|아이|어린이집`)},
}

// DefaultCategorizer returns the built-in household expense table
func DefaultCategorizer() *Categorizer {
	return NewCategorizer(defaultRules, CategoryOther)
}

// NewCategorizer creates a Categorizer from an ordered rule list
func NewCategorizer(rules []Rule, fallback string) *Categorizer {
	rs := make([]Rule, len(rules))
	copy(rs, rules)
	return &Categorizer{rules: rs, fallback: fallback}
}

// Categorize returns the category of the first matching rule, or the fallback
func (c *Categorizer) Categorize(usage string) string {
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(usage) {
			return rule.Category
		}
	}
	return c.fallback
}

// Rules returns a copy of the ordered rule list
func (c *Categorizer) Rules() []Rule {
	rs := make([]Rule, len(c.rules))
	copy(rs, c.rules)
	return rs
}

// Fallback returns the label used when no rule matches
func (c *Categorizer) Fallback() string {
	return c.fallback
}

type ruleFile struct {
	Fallback string `yaml:"fallback"`
	Rules    []struct {
		Category string `yaml:"category"`
		Pattern  string `yaml:"pattern"`
	} `yaml:"rules"`
}

// ParseCategorizer builds a Categorizer from a YAML rule table
func ParseCategorizer(data []byte) (*Categorizer, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rule table is empty")
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.Category == "" {
			return nil, fmt.Errorf("rule %d: category is required", i+1)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d (%s): pattern is required", i+1, r.Category)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): compiling pattern: %w", i+1, r.Category, err)
		}
		rules = append(rules, Rule{Category: r.Category, Pattern: re})
	}

	fallback := rf.Fallback
	if fallback == "" {
		fallback = CategoryOther
	}
	return NewCategorizer(rules, fallback), nil
}

// LoadCategorizer reads a YAML rule table from disk
func LoadCategorizer(path string) (*Categorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseCategorizer(data)
}
