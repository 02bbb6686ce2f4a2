// Package signup parses numbered signup lists out of chat messages and fills in
// the first empty slot with a name.
//
// A signup list looks like:
//
//	Football Saturday 10am
//	1) Bob
//	2) Alice
//	3)
//	4)
//	Bring water!
//
// Only the slot line that receives the name is rewritten. Every other line,
// including the header and footer around the numbered block, is returned
// byte-identical.
package signup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reason explains the outcome of an Apply call.
type Reason int

const (
	// Filled means the first empty slot now holds the name.
	Filled Reason = iota
	// Appended means the list was full and a new numbered line was added.
	Appended
	// AlreadyPresent means the name is already on the list.
	AlreadyPresent
	// NoEmptySlot means every slot is taken.
	NoEmptySlot
	// NotAList means no numbered list starting at 1 was found.
	NotAList
	// TooFewNames means fewer than Policy.MinFilled slots are occupied.
	TooFewNames
)

func (r Reason) String() string {
	switch r {
	case Filled:
		return "filled"
	case Appended:
		return "appended"
	case AlreadyPresent:
		return "already present"
	case NoEmptySlot:
		return "no empty slot"
	case NotAList:
		return "not a list"
	case TooFewNames:
		return "too few names"
	default:
		return "unknown"
	}
}

// Policy controls which slots count as empty and when a signup is allowed.
type Policy struct {
	// Placeholders are occupant strings treated as empty, compared after
	// trimming (e.g. "_", "...", "-"). Blank content is always empty.
	Placeholders []string

	// MinFilled delays signing up until at least this many slots are taken.
	MinFilled int

	// AppendWhenFull adds a new numbered line after the last slot when no slot
	// is empty, instead of leaving the text unchanged.
	AppendWhenFull bool
}

// IsEmpty reports whether a slot's occupant counts as empty.
func (p Policy) IsEmpty(occupant string) bool {
	occupant = strings.TrimSpace(occupant)
	if occupant == "" {
		return true
	}
	for _, ph := range p.Placeholders {
		if ph = strings.TrimSpace(ph); ph != "" && occupant == ph {
			return true
		}
	}
	return false
}

// Slot is one numbered line of a signup list.
type Slot struct {
	// Number is the list number written in the text.
	Number int
	// Line is the zero-based line index in the original text.
	Line int
	// Indent is the whitespace before the number.
	Indent string
	// Punct is the marker punctuation: ")", "." or "-".
	Punct string
	// Occupant is the trimmed content after the marker, possibly empty.
	Occupant string
}

// Marker returns the slot's numbering prefix, e.g. "3)".
func (s Slot) Marker() string {
	return s.Indent + strconv.Itoa(s.Number) + s.Punct
}

// List is a parsed signup list.
type List struct {
	// Lines holds the original text split on "\n". Trailing "\r" is kept on
	// each line.
	Lines []string
	// Slots are the numbered lines in order.
	Slots []Slot
}

// Header returns the lines before the first slot.
func (l *List) Header() []string {
	if len(l.Slots) == 0 {
		return l.Lines
	}
	return l.Lines[:l.Slots[0].Line]
}

// Footer returns the lines after the last slot.
func (l *List) Footer() []string {
	if len(l.Slots) == 0 {
		return nil
	}
	return l.Lines[l.Slots[len(l.Slots)-1].Line+1:]
}

// Names returns the occupants in slot order. Empty slots yield "".
func (l *List) Names() []string {
	names := make([]string, len(l.Slots))
	for i, s := range l.Slots {
		names[i] = s.Occupant
	}
	return names
}

// Filled counts the occupied slots under the given policy.
func (l *List) Filled(p Policy) int {
	n := 0
	for _, s := range l.Slots {
		if !p.IsEmpty(s.Occupant) {
			n++
		}
	}
	return n
}

// Contains reports whether name occupies any slot, matched as a whole word
// without regard to case.
func (l *List) Contains(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	re, err := regexp.Compile(`(?i)(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(name) + `($|[^\p{L}\p{N}])`)
	if err != nil {
		return false
	}
	for _, s := range l.Slots {
		if re.MatchString(s.Occupant) {
			return true
		}
	}
	return false
}

// bulletRe matches "<indent><digits><spaces><punct><rest>".
var bulletRe = regexp.MustCompile(`^([ \t]*)(\d{1,3})[ \t]*([).\-])(.*)$`)

// parseBullet parses one line (without its "\r") as a slot.
func parseBullet(line string) (Slot, bool) {
	m := bulletRe.FindStringSubmatch(line)
	if m == nil {
		return Slot{}, false
	}
	rest := m[4]
	// "1.5 km" and "1-2 people" are prose, not markers.
	if m[3] != ")" && rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return Slot{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Slot{}, false
	}
	return Slot{
		Number:   n,
		Indent:   m[1],
		Punct:    m[3],
		Occupant: strings.TrimSpace(rest),
	}, true
}

// Parse finds the first numbered list in text. The list starts at a line
// numbered 1 and continues while numbers increase by one; blank lines between
// slots are allowed. It returns nil when no such list exists.
func Parse(text string) *List {
	lines := strings.Split(text, "\n")
	for start := 0; start < len(lines); start++ {
		first, ok := parseBullet(strings.TrimSuffix(lines[start], "\r"))
		if !ok || first.Number != 1 {
			continue
		}
		first.Line = start
		list := &List{Lines: lines, Slots: []Slot{first}}
		for i := start + 1; i < len(lines); i++ {
			raw := strings.TrimSuffix(lines[i], "\r")
			if strings.TrimSpace(raw) == "" {
				continue
			}
			s, ok := parseBullet(raw)
			if !ok || s.Number != len(list.Slots)+1 {
				break
			}
			s.Line = i
			list.Slots = append(list.Slots, s)
		}
		return list
	}
	return nil
}

// Outcome is the result of applying a signup.
type Outcome struct {
	// Text is the edited message, or the input unchanged.
	Text string
	// Changed reports whether Text differs from the input.
	Changed bool
	// Position is the one-based slot number that received the name, or 0.
	Position int
	// Reason explains the outcome.
	Reason Reason
}

func (o Outcome) String() string {
	if o.Changed {
		return fmt.Sprintf("%s at position %d", o.Reason, o.Position)
	}
	return o.Reason.String()
}

// Apply puts name into the first empty slot of the signup list in text.
// The text is returned unchanged when there is no list, the name is already on
// it, or no slot is empty. Applying twice with the same name is the same as
// applying once.
func Apply(text, name string, p Policy) Outcome {
	unchanged := func(r Reason) Outcome {
		return Outcome{Text: text, Reason: r}
	}

	name = strings.TrimSpace(name)
	list := Parse(text)
	if list == nil || name == "" {
		return unchanged(NotAList)
	}
	if list.Contains(name) {
		return unchanged(AlreadyPresent)
	}
	if list.Filled(p) < p.MinFilled {
		return unchanged(TooFewNames)
	}

	lines := make([]string, len(list.Lines))
	copy(lines, list.Lines)

	for _, s := range list.Slots {
		if !p.IsEmpty(s.Occupant) {
			continue
		}
		lines[s.Line] = s.Marker() + " " + name + lineEnding(lines[s.Line])
		return Outcome{
			Text:     strings.Join(lines, "\n"),
			Changed:  true,
			Position: s.Number,
			Reason:   Filled,
		}
	}

	if !p.AppendWhenFull {
		return unchanged(NoEmptySlot)
	}

	last := list.Slots[len(list.Slots)-1]
	added := Slot{Number: last.Number + 1, Indent: last.Indent, Punct: last.Punct}
	newLine := added.Marker() + " " + name + lineEnding(lines[last.Line])
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:last.Line+1]...)
	out = append(out, newLine)
	out = append(out, lines[last.Line+1:]...)
	return Outcome{
		Text:     strings.Join(out, "\n"),
		Changed:  true,
		Position: added.Number,
		Reason:   Appended,
	}
}

// lineEnding returns "\r" for CRLF lines.
func lineEnding(line string) string {
	if strings.HasSuffix(line, "\r") {
		return "\r"
	}
	return ""
}
