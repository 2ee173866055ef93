package domain

import "fmt"

// CardKind distinguishes the two kinds of card a deck can produce.
type CardKind int

const (
	QuestionAnswer CardKind = iota + 1
	Cloze
)

var cardKindNames = map[CardKind]string{
	QuestionAnswer: "qa",
	Cloze:          "cloze",
}

var cardKindValues = map[string]CardKind{
	"qa":    QuestionAnswer,
	"cloze": Cloze,
}

func (k CardKind) String() string {
	if name, ok := cardKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CardKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k CardKind) MarshalText() ([]byte, error) {
	name, ok := cardKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown card kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CardKind) UnmarshalText(text []byte) error {
	v, ok := cardKindValues[string(text)]
	if !ok {
		return fmt.Errorf("unknown card kind %q", string(text))
	}
	*k = v
	return nil
}

// Card is a single unit of study content. Front and Back hold the
// markup-ready text for the two sides: for a question/answer card these are
// the question and answer, for a cloze card the block text with the target
// span masked and revealed respectively.
type Card struct {
	// ID is the content hash identifying the card. It is stable across
	// re-parses of unchanged text; editing the text produces a new ID.
	ID    string
	Deck  string
	Front string
	Back  string
	Kind  CardKind
	// Family groups the sibling cards split from one cloze block. Empty for
	// question/answer cards.
	Family string
}
