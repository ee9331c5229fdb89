package formatter

import (
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Path is a structural location: string segments are mapping keys, int
// segments are sequence indices.
type Path []interface{}

// String renders the path as workflow.steps[0].name.
func (p Path) String() string {
	var b strings.Builder
	for _, seg := range p {
		switch s := seg.(type) {
		case int:
			b.WriteString("[" + strconv.Itoa(s) + "]")
		default:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.(string))
		}
	}
	return b.String()
}

// PathAt maps a character offset (counted in runes from the start of text)
// to the path of the first scalar whose source range contains it. A key
// resolves to the same path as its value. The result is empty when the text
// does not parse or no scalar covers the offset.
func PathAt(text string, offset int) Path {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return Path{}
	}
	l := newLocator(text)
	if path, ok := l.search(&root, Path{}, offset); ok {
		return path
	}
	return Path{}
}

func (l *locator) search(n *yaml.Node, path Path, offset int) (Path, bool) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if p, ok := l.search(c, path, offset); ok {
				return p, true
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			child := extend(path, key.Value)
			if l.contains(key, offset) {
				return child, true
			}
			if p, ok := l.search(value, child, offset); ok {
				return p, true
			}
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			if p, ok := l.search(c, extend(path, i), offset); ok {
				return p, true
			}
		}
	case yaml.ScalarNode:
		if l.contains(n, offset) {
			return path, true
		}
	}
	return nil, false
}

func extend(path Path, seg interface{}) Path {
	out := make(Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// locator converts node marks into rune offsets of the source.
type locator struct {
	src        []rune
	lineStarts []int
}

func newLocator(text string) *locator {
	l := &locator{src: []rune(text), lineStarts: []int{0}}
	for i, r := range l.src {
		if r == '\n' {
			l.lineStarts = append(l.lineStarts, i+1)
		}
	}
	return l
}

func (l *locator) contains(n *yaml.Node, offset int) bool {
	if n.Kind != yaml.ScalarNode {
		return false
	}
	start, end := l.span(n)
	return start >= 0 && offset >= start && offset <= end
}

func (l *locator) offsetOf(line, column int) int {
	if line < 1 || line > len(l.lineStarts) {
		return -1
	}
	return l.lineStarts[line-1] + column - 1
}

// span returns the inclusive rune range a scalar occupies in the source.
func (l *locator) span(n *yaml.Node) (int, int) {
	start := l.offsetOf(n.Line, n.Column)
	if start < 0 || start >= len(l.src) {
		return -1, -1
	}
	switch {
	case n.Style&yaml.DoubleQuotedStyle != 0:
		return start, l.closingQuote(start, '"')
	case n.Style&yaml.SingleQuotedStyle != 0:
		return start, l.closingQuote(start, '\'')
	case n.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0:
		return start, l.blockEnd(n.Line)
	}

	value := []rune(n.Value)
	if len(value) == 0 {
		return start, start
	}
	if start+len(value) <= len(l.src) && string(l.src[start:start+len(value)]) == n.Value {
		return start, start + len(value) - 1
	}
	return start, l.plainEnd(start)
}

func (l *locator) closingQuote(start int, quote rune) int {
	for i := start + 1; i < len(l.src); i++ {
		switch {
		case quote == '"' && l.src[i] == '\\':
			i++
		case l.src[i] == quote:
			if quote == '\'' && i+1 < len(l.src) && l.src[i+1] == '\'' {
				i++
				continue
			}
			return i
		}
	}
	return len(l.src) - 1
}

// blockEnd finds the last content rune of a block scalar whose indicator
// sits on line. The block runs while lines are blank or indented deeper than
// the indicator line.
func (l *locator) blockEnd(line int) int {
	base := l.indent(line)
	end := l.lineEnd(line)
	for next := line + 1; next <= len(l.lineStarts); next++ {
		if l.blank(next) {
			continue
		}
		if l.indent(next) <= base {
			break
		}
		end = l.lineEnd(next)
	}
	return end
}

// plainEnd is the end of the current line without a trailing comment.
func (l *locator) plainEnd(start int) int {
	end := start
	for i := start; i < len(l.src) && l.src[i] != '\n'; i++ {
		if l.src[i] == '#' && i > start && unicode.IsSpace(l.src[i-1]) {
			break
		}
		if !unicode.IsSpace(l.src[i]) {
			end = i
		}
	}
	return end
}

func (l *locator) lineEnd(line int) int {
	i := l.lineStarts[line-1]
	for i < len(l.src) && l.src[i] != '\n' {
		i++
	}
	return i - 1
}

func (l *locator) indent(line int) int {
	n := 0
	for i := l.lineStarts[line-1]; i < len(l.src) && l.src[i] == ' '; i++ {
		n++
	}
	return n
}

func (l *locator) blank(line int) bool {
	for i := l.lineStarts[line-1]; i < len(l.src) && l.src[i] != '\n'; i++ {
		if !unicode.IsSpace(l.src[i]) {
			return false
		}
	}
	return true
}

// Locate follows path segments from node. It returns the deepest node it
// reached and whether the whole path resolved.
func Locate(node *yaml.Node, segments []string) (*yaml.Node, bool) {
	if node == nil {
		return nil, false
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	for _, seg := range segments {
		var next *yaml.Node
		switch node.Kind {
		case yaml.MappingNode:
			next = Value(node, seg)
		case yaml.SequenceNode:
			if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(node.Content) {
				next = node.Content[i]
			}
		}
		if next == nil {
			return node, false
		}
		node = next
	}
	return node, true
}
