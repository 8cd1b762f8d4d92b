package classify

import (
	"strings"

	"github.com/yurifrl/finbr/pkg/models"
)

// Matcher applies rules in order; the first rule whose Contains text occurs
// in the description wins.
type Matcher struct {
	rules   []models.ClassificationRule
	needles []string
}

// NewMatcher keeps the rules in the order given. Callers load them sorted by
// position.
func NewMatcher(rules []models.ClassificationRule) *Matcher {
	m := &Matcher{
		rules:   make([]models.ClassificationRule, len(rules)),
		needles: make([]string, len(rules)),
	}
	copy(m.rules, rules)
	for i, r := range rules {
		m.needles[i] = strings.ToLower(strings.TrimSpace(r.Contains))
	}
	return m
}

// Match returns the first matching rule. Rules with empty text never match.
func (m *Matcher) Match(description string) (models.ClassificationRule, bool) {
	haystack := strings.ToLower(description)
	for i, needle := range m.needles {
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			return m.rules[i], true
		}
	}
	return models.ClassificationRule{}, false
}

func (m *Matcher) Len() int {
	return len(m.rules)
}
