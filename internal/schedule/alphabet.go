package schedule

import (
	"fmt"
	"unicode"
)

// Alphabet maps each working weekday to the letter used in schedule
// encodings and to a short display label.
type Alphabet struct {
	letters [WorkingDays]rune
	labels  [WorkingDays]string
	index   map[rune]int
}

// DefaultAlphabet returns the l-m-x-j-v letters with Spanish labels.
func DefaultAlphabet() Alphabet {
	a, err := NewAlphabet("lmxjv", []string{"lun", "mar", "mié", "jue", "vie"})
	if err != nil {
		panic(err)
	}
	return a
}

// NewAlphabet builds the weekday table. letters holds one rune per working
// day, Monday first; labels is optional and defaults to the letters.
func NewAlphabet(letters string, labels []string) (Alphabet, error) {
	runes := []rune(letters)
	if len(runes) != WorkingDays {
		return Alphabet{}, &ConfigurationError{Problems: []string{
			fmt.Sprintf("weekday alphabet %q must have exactly %d letters", letters, WorkingDays),
		}}
	}
	if labels != nil && len(labels) != WorkingDays {
		return Alphabet{}, &ConfigurationError{Problems: []string{
			fmt.Sprintf("weekday labels must have exactly %d entries, got %d", WorkingDays, len(labels)),
		}}
	}

	var a Alphabet
	a.index = make(map[rune]int, WorkingDays)
	var problems []string
	for i, r := range runes {
		if unicode.IsDigit(r) || r == ',' || unicode.IsSpace(r) {
			problems = append(problems, fmt.Sprintf("weekday letter %q collides with the index syntax", r))
		}
		if _, dup := a.index[r]; dup {
			problems = append(problems, fmt.Sprintf("weekday letter %q is used twice", r))
		}
		a.index[r] = i
		a.letters[i] = r
		a.labels[i] = string(r)
		if labels != nil {
			a.labels[i] = labels[i]
		}
	}
	if len(problems) > 0 {
		return Alphabet{}, &ConfigurationError{Problems: problems}
	}
	return a, nil
}

// Weekday returns the weekday index for letter.
func (a Alphabet) Weekday(letter rune) (int, bool) {
	i, ok := a.index[letter]
	return i, ok
}

// Letter returns the encoding letter of weekday.
func (a Alphabet) Letter(weekday int) rune { return a.letters[weekday] }

// Label returns the display label of weekday.
func (a Alphabet) Label(weekday int) string { return a.labels[weekday] }

// Letters returns the letters in weekday order.
func (a Alphabet) Letters() string { return string(a.letters[:]) }

// Labels returns the labels in weekday order.
func (a Alphabet) Labels() []string { return append([]string(nil), a.labels[:]...) }
