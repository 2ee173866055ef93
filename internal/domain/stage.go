package domain

import "fmt"

// Stage is the position of a card in its memory lifecycle.
type Stage int

const (
	StageNew Stage = iota + 1
	StageLearning
	StageReview
	StageRelapsed
)

var stageNames = map[Stage]string{
	StageNew:      "new",
	StageLearning: "learning",
	StageReview:   "review",
	StageRelapsed: "relapsed",
}

var stageValues = map[string]Stage{
	"new":      StageNew,
	"learning": StageLearning,
	"review":   StageReview,
	"relapsed": StageRelapsed,
}

// ParseStage maps a stage token to its Stage.
func ParseStage(token string) (Stage, error) {
	s, ok := stageValues[token]
	if !ok {
		return 0, fmt.Errorf("unknown stage %q", token)
	}
	return s, nil
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	name, ok := stageNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	v, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
