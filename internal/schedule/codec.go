package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot is one recurring weekly commitment: a block on a working weekday.
type Slot struct {
	Weekday int
	Index   int
	Block   Block
}

// Schedule is the decoded list of a member's slots, in encoding order.
// Repeated slots are kept as they appear.
type Schedule []Slot

// Contains reports whether the schedule has a slot for block index on weekday.
func (s Schedule) Contains(weekday, index int) bool {
	for _, slot := range s {
		if slot.Weekday == weekday && slot.Index == index {
			return true
		}
	}
	return false
}

// Codec reads and writes compact schedule encodings such as "l0,2x1v3".
//
// Grammar:
//
//	schedule = group { group }
//	group    = letter index { "," index }
//	index    = "0" | nonzero { digit }
//
// where letter is a weekday letter of the alphabet and every index must name
// a block of the catalog.
type Codec struct {
	catalog  *Catalog
	alphabet Alphabet
}

// NewCodec returns a codec over catalog and alphabet.
func NewCodec(catalog *Catalog, alphabet Alphabet) *Codec {
	return &Codec{catalog: catalog, alphabet: alphabet}
}

// Catalog returns the block catalog the codec validates against.
func (c *Codec) Catalog() *Catalog { return c.catalog }

// Alphabet returns the weekday alphabet.
func (c *Codec) Alphabet() Alphabet { return c.alphabet }

// Verify reports whether encoding is a well-formed schedule.
func (c *Codec) Verify(encoding string) bool {
	_, err := c.Decode(encoding)
	return err == nil
}

// Decode parses encoding into its slots. Malformed input yields a
// *ValidationError.
func (c *Codec) Decode(encoding string) (Schedule, error) {
	p := parser{codec: c, src: encoding, runes: []rune(encoding)}
	return p.parse()
}

// Encode writes s back in compact form, opening a new group whenever the
// weekday changes.
func (c *Codec) Encode(s Schedule) string {
	var b strings.Builder
	for i, slot := range s {
		if i == 0 || s[i-1].Weekday != slot.Weekday {
			b.WriteRune(c.alphabet.Letter(slot.Weekday))
		} else {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(slot.Index))
	}
	return b.String()
}

type parser struct {
	codec *Codec
	src   string
	runes []rune
	pos   int
}

func (p *parser) parse() (Schedule, error) {
	if len(p.runes) == 0 {
		return nil, p.fail("empty schedule")
	}
	var out Schedule
	for p.pos < len(p.runes) {
		r := p.runes[p.pos]
		day, ok := p.codec.alphabet.Weekday(r)
		if !ok {
			return nil, p.fail(fmt.Sprintf("expected weekday letter, got %q", r))
		}
		p.pos++
		for {
			idx, err := p.index()
			if err != nil {
				return nil, err
			}
			out = append(out, Slot{Weekday: day, Index: idx, Block: p.codec.catalog.Block(idx)})
			if p.pos < len(p.runes) && p.runes[p.pos] == ',' {
				p.pos++
				continue
			}
			break
		}
	}
	return out, nil
}

func (p *parser) index() (int, error) {
	start := p.pos
	for p.pos < len(p.runes) && p.runes[p.pos] >= '0' && p.runes[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, p.fail("expected block index")
	}
	digits := string(p.runes[start:p.pos])
	if len(digits) > 1 && digits[0] == '0' {
		p.pos = start
		return 0, p.fail(fmt.Sprintf("block index %q has a leading zero", digits))
	}
	last := p.codec.catalog.Len() - 1
	n, err := strconv.Atoi(digits)
	if err != nil || n > last {
		p.pos = start
		return 0, p.fail(fmt.Sprintf("block index %s out of range [0, %d]", digits, last))
	}
	return n, nil
}

func (p *parser) fail(reason string) error {
	return &ValidationError{Encoding: p.src, Pos: p.pos, Reason: reason}
}
