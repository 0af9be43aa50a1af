package prompt

import "strings"

// sections accumulates labeled prompt blocks in insertion order. Empty
// blocks are dropped so every section is independently omittable.
type sections struct {
	blocks []string
}

func (s *sections) add(block string) {
	if strings.TrimSpace(block) == "" {
		return
	}
	s.blocks = append(s.blocks, block)
}

// addTitled adds "# title" followed by the non-empty lines. Nothing is
// added when every line is empty.
func (s *sections) addTitled(title string, lines ...string) {
	s.add(titled(title, lines...))
}

func (s *sections) String() string {
	return strings.Join(s.blocks, "\n\n")
}

func titled(title string, lines ...string) string {
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(line)
	}
	if b.Len() == 0 {
		return ""
	}
	return title + b.String()
}
