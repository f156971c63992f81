package uri

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Rule rewrites a URI. A rule is one of three kinds:
//
//   - exact: From names a whole URI, which is replaced by To;
//   - folder: From ends with '/', and any URI starting with it is rewritten to
//     To followed by the remainder;
//   - regex: Pattern is matched and replaced by Replacement, which may
//     reference groups as $1.
//
// Include and Exclude are doublestar glob guards matched against the whole URI.
// When Include is set at least one pattern must match; no Exclude pattern may.
type Rule struct {
	Priority    int      `yaml:"priority" mapstructure:"priority"`
	From        string   `yaml:"from,omitempty" mapstructure:"from"`
	To          string   `yaml:"to,omitempty" mapstructure:"to"`
	Pattern     string   `yaml:"pattern,omitempty" mapstructure:"pattern"`
	Replacement string   `yaml:"replacement,omitempty" mapstructure:"replacement"`
	Include     []string `yaml:"include,omitempty" mapstructure:"include"`
	Exclude     []string `yaml:"exclude,omitempty" mapstructure:"exclude"`

	re *regexp.Regexp
}

func (r Rule) isFolder() bool { return r.Pattern == "" && strings.HasSuffix(r.From, "/") }

func (r *Rule) compile() error {
	switch {
	case r.Pattern != "" && r.From != "":
		return errors.Newf("uri: rule sets both from %q and pattern %q", r.From, r.Pattern)
	case r.Pattern != "":
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return errors.Wrapf(err, "uri: rule pattern %q", r.Pattern)
		}
		r.re = re
	case r.From == "":
		return errors.New("uri: rule needs from or pattern")
	}
	for _, glob := range append(append([]string{}, r.Include...), r.Exclude...) {
		if !doublestar.ValidatePattern(glob) {
			return errors.Newf("uri: invalid guard pattern %q", glob)
		}
	}
	return nil
}

func (r *Rule) guardsAllow(s string) bool {
	if len(r.Include) > 0 {
		included := false
		for _, glob := range r.Include {
			if ok, _ := doublestar.Match(glob, s); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, glob := range r.Exclude {
		if ok, _ := doublestar.Match(glob, s); ok {
			return false
		}
	}
	return true
}

// apply returns the rewritten string and whether the rule matched.
func (r *Rule) apply(s string) (string, bool) {
	if !r.guardsAllow(s) {
		return s, false
	}
	switch {
	case r.re != nil:
		if !r.re.MatchString(s) {
			return s, false
		}
		return r.re.ReplaceAllString(s, r.Replacement), true
	case r.isFolder():
		if !strings.HasPrefix(s, r.From) {
			return s, false
		}
		return r.To + s[len(r.From):], true
	default:
		if s != r.From {
			return s, false
		}
		return r.To, true
	}
}

// Mapper normalizes logical URIs to physical ones by applying rules until a
// pass changes nothing.
//
// Rules run in ascending priority, keeping insertion order for equal
// priorities. When a folder rule matches, the longest matching folder prefix of
// the same priority is used. A rule set
// that rewrites in a cycle makes Normalize loop forever; keeping rule sets
// well formed is up to the caller.
type Mapper struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMapper compiles rules into a mapper.
func NewMapper(rules ...Rule) (*Mapper, error) {
	m := &Mapper{}
	for _, rule := range rules {
		if err := m.Add(rule); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add compiles and inserts a rule.
func (m *Mapper) Add(rule Rule) error {
	if err := rule.compile(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority < m.rules[j].Priority
	})
	return nil
}

// Rules returns the rules in evaluation order.
func (m *Mapper) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Normalize rewrites u until no rule changes it. The result is a fixpoint, so
// Normalize(Normalize(u)) == Normalize(u).
func (m *Mapper) Normalize(u URI) URI {
	if m == nil {
		return u
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	current := u.raw
	for {
		next, changed := m.pass(current)
		if !changed {
			return URI{raw: current}
		}
		current = next
	}
}

func (m *Mapper) pass(s string) (string, bool) {
	for i := range m.rules {
		out, ok := m.rules[i].apply(s)
		if !ok {
			continue
		}
		if m.rules[i].isFolder() {
			out = m.longestFolder(s, m.rules[i])
		}
		return out, out != s
	}
	return s, false
}

// longestFolder returns the rewrite of the longest folder rule with the same
// priority as first that matches s.
func (m *Mapper) longestFolder(s string, first Rule) string {
	best := first
	for i := range m.rules {
		r := &m.rules[i]
		if r.Priority != first.Priority || !r.isFolder() || len(r.From) <= len(best.From) {
			continue
		}
		if _, ok := r.apply(s); ok {
			best = *r
		}
	}
	out, _ := best.apply(s)
	return out
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads mapping rules from YAML. The document is either a list of
// rules or a mapping with a rules key.
func LoadRules(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "uri: read rules")
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err == nil {
		return rules, nil
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "uri: parse rules")
	}
	return file.Rules, nil
}
