// Package knowledge matches message words against a static corpus of
// descriptive snippets.
package knowledge

import (
	"regexp"
	"strings"
)

// Snippet is one corpus entry. Trigger is optional and names the subject
// the description is about.
type Snippet struct {
	Trigger     string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Description string `json:"description"       yaml:"description"`
}

// Match records that Word occurs as a whole word in Description.
type Match struct {
	Word        string
	Description string
}

var mentionTokenRe = regexp.MustCompile(`^<@!?(\d+)>$`)

type Matcher struct {
	corpus    []Snippet
	stopWords map[string]struct{}
}

// NewMatcher builds a matcher. A nil stopWords uses DefaultStopWords.
func NewMatcher(corpus []Snippet, stopWords []string) *Matcher {
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	sw := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		sw[strings.ToLower(w)] = struct{}{}
	}
	return &Matcher{corpus: corpus, stopWords: sw}
}

func (m *Matcher) Len() int { return len(m.corpus) }

// Match scans content word by word. names maps mention ids to display
// names; mentions of selfID are not looked up.
func (m *Matcher) Match(content string, names map[string]string, selfID string) []Match {
	if len(m.corpus) == 0 {
		return nil
	}

	var matches []Match
	seen := make(map[Match]struct{})
	record := func(word string) {
		for _, s := range m.find(word) {
			mt := Match{Word: word, Description: s.Description}
			if _, dup := seen[mt]; dup {
				continue
			}
			seen[mt] = struct{}{}
			matches = append(matches, mt)
		}
	}

	for _, word := range strings.Split(strings.ToLower(content), " ") {
		if sub := mentionTokenRe.FindStringSubmatch(word); sub != nil && sub[1] != selfID {
			if name := names[sub[1]]; name != "" {
				record(name)
			}
		}

		cleaned := strings.NewReplacer("?", "", "!", "").Replace(word)
		if cleaned == "" {
			continue
		}
		if _, stop := m.stopWords[cleaned]; stop {
			continue
		}
		record(cleaned)
	}
	return matches
}

// Describe returns the snippet that best describes name: a trigger match
// first, then the first description mentioning name as a whole word.
func (m *Matcher) Describe(name string) string {
	if name == "" {
		return ""
	}
	for _, s := range m.corpus {
		if s.Trigger != "" && strings.EqualFold(s.Trigger, name) {
			return s.Description
		}
	}
	if found := m.find(name); len(found) > 0 {
		return found[0].Description
	}
	return ""
}

func (m *Matcher) find(word string) []Snippet {
	re, err := wholeWord(word)
	if err != nil {
		return nil
	}
	var out []Snippet
	for _, s := range m.corpus {
		if re.MatchString(s.Description) {
			out = append(out, s)
		}
	}
	return out
}

func wholeWord(word string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}
