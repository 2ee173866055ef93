package domain

import "fmt"

// Grade is the user's response to a revealed card.
type Grade int

const (
	Forgot Grade = iota + 1
	Hard
	Good
	Easy
)

// Grade tokens are user-visible: they appear in the web form values and the
// snapshot/review log encodings, so they must not change.
var gradeNames = map[Grade]string{
	Forgot: "forgot",
	Hard:   "hard",
	Good:   "good",
	Easy:   "easy",
}

var gradeValues = map[string]Grade{
	"forgot": Forgot,
	"hard":   Hard,
	"good":   Good,
	"easy":   Easy,
}

// ParseGrade maps a grade token to its Grade. It fails on anything other
// than "forgot", "hard", "good" or "easy".
func ParseGrade(token string) (Grade, error) {
	g, ok := gradeValues[token]
	if !ok {
		return 0, fmt.Errorf("unknown grade %q", token)
	}
	return g, nil
}

func (g Grade) String() string {
	if name, ok := gradeNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// MarshalText implements encoding.TextMarshaler.
func (g Grade) MarshalText() ([]byte, error) {
	name, ok := gradeNames[g]
	if !ok {
		return nil, fmt.Errorf("unknown grade %d", int(g))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grade) UnmarshalText(text []byte) error {
	v, err := ParseGrade(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
