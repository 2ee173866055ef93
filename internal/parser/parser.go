// Package parser turns deck text into cards. Parsing never fails outright:
// malformed blocks become Issues and the rest of the deck parses normally.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"

	"github.com/conorfennell/drillhash/internal/cardhash"
	"github.com/conorfennell/drillhash/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	clozePrefix    = "C:"
)

// Cloze spans are rendered into the card sides at parse time so the identity
// hash covers exactly what the user sees.
const (
	clozeMask        = "<span class='cloze'>.............</span>"
	clozeRevealOpen  = "<span class='cloze-reveal'>"
	clozeRevealClose = "</span>"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingCloze
)

// Issue is a recoverable parse diagnostic scoped to one card block. Issues
// never abort a deck; the block they describe is dropped and scanning
// resumes.
type Issue struct {
	Deck    string
	Line    int
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s:%d: %s", i.Deck, i.Line, i.Message)
}

// ParseDecks parses every deck in the mapping from deck-file name to raw
// text. Decks are visited in sorted name order and cards keep their per-deck
// parse order. Cards with duplicate identities are dropped keep-first.
func ParseDecks(decks map[string]string) ([]domain.Card, []Issue) {
	names := make([]string, 0, len(decks))
	for name := range decks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		cards  []domain.Card
		issues []Issue
	)
	seen := make(map[string]bool)
	for _, name := range names {
		deckCards, deckIssues := ParseDeck(name, decks[name])
		issues = append(issues, deckIssues...)
		for _, card := range deckCards {
			if seen[card.ID] {
				continue
			}
			seen[card.ID] = true
			cards = append(cards, card)
		}
	}
	return cards, issues
}

// ParseFile reads one deck file. The fallback deck name is the base file
// name with its extension stripped.
func ParseFile(path string) ([]domain.Card, []Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read deck file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cards, issues := ParseDeck(name, string(data))
	return cards, issues, nil
}

// ParseDeck extracts the ordered cards from one deck's text. The deck is
// named by the front-matter `name` key when present, otherwise fallbackName.
// A deck with zero cards is an empty result, not an error.
func ParseDeck(fallbackName, text string) ([]domain.Card, []Issue) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	name, start, issues := frontMatter(fallbackName, lines)

	var (
		cards      []domain.Card
		current    = seeking
		block      []string
		question   string
		blockStart int
		inFence    bool
		inMath     bool
	)
	seen := make(map[string]bool)

	report := func(lineNum int, msg string) {
		issues = append(issues, Issue{Deck: name, Line: lineNum, Message: msg})
	}

	// track watches block content for fenced code and display math
	// delimiters. While one is open, markers and blank lines lose their
	// meaning so a block is never split mid-fence.
	track := func(content string) {
		t := strings.TrimSpace(content)
		switch {
		case inFence:
			if strings.HasPrefix(t, "```") {
				inFence = false
			}
		case inMath:
			if strings.Count(t, "$$")%2 == 1 {
				inMath = false
			}
		case strings.HasPrefix(t, "```"):
			inFence = true
		case strings.Count(t, "$$")%2 == 1:
			inMath = true
		}
	}

	// reset drops the open block and returns to scanning for the next marker.
	reset := func() {
		current = seeking
		block = nil
		question = ""
		inFence = false
		inMath = false
	}

	open := func(next state, lineNum int, line, prefix string) {
		current = next
		blockStart = lineNum
		first := rest(line, prefix)
		block = []string{first}
		track(first)
	}

	emit := func(card domain.Card) {
		if seen[card.ID] {
			return
		}
		seen[card.ID] = true
		cards = append(cards, card)
	}

	emitQA := func() {
		answer := strings.TrimSpace(strings.Join(block, "\n"))
		card := domain.Card{
			Deck:  name,
			Front: question,
			Back:  answer,
			Kind:  domain.QuestionAnswer,
		}
		card.ID = cardhash.Sum(card.Deck, card.Kind, card.Front, card.Back)
		emit(card)
	}

	emitCloze := func() {
		blockText := strings.TrimSpace(strings.Join(block, "\n"))
		siblings, ok := clozeCards(name, blockText)
		if !ok {
			report(blockStart, "cloze block has no cloze spans")
			return
		}
		for _, card := range siblings {
			emit(card)
		}
	}

	for i := start; i < len(lines); i++ {
		lineNum := i + 1
		line := lines[i]

		// Everything inside an open fence is content, markers included.
		if current != seeking && (inFence || inMath) {
			block = append(block, line)
			track(line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		isQ := strings.HasPrefix(line, questionPrefix)
		isA := strings.HasPrefix(line, answerPrefix)
		isC := strings.HasPrefix(line, clozePrefix)
		isSeparator := trimmed == "---"
		isBlank := trimmed == ""

		switch current {
		case seeking:
			switch {
			case isQ:
				open(readingQuestion, lineNum, line, questionPrefix)
			case isC:
				open(readingCloze, lineNum, line, clozePrefix)
			case isA:
				report(lineNum, "answer marker without an open question")
			default:
				// Lines between cards are skipped.
			}

		case readingQuestion:
			switch {
			case isA:
				question = strings.TrimSpace(strings.Join(block, "\n"))
				open(readingAnswer, lineNum, line, answerPrefix)
			case isQ:
				report(lineNum, "new question while a question is open")
				reset()
				open(readingQuestion, lineNum, line, questionPrefix)
			case isC:
				report(lineNum, "cloze marker while a question is open")
				reset()
				open(readingCloze, lineNum, line, clozePrefix)
			case isSeparator:
				report(lineNum, "card separator while a question is open")
				reset()
			case isBlank:
				report(lineNum, "question without an answer")
				reset()
			default:
				block = append(block, line)
				track(line)
			}

		case readingAnswer:
			switch {
			case isQ:
				emitQA()
				reset()
				open(readingQuestion, lineNum, line, questionPrefix)
			case isC:
				emitQA()
				reset()
				open(readingCloze, lineNum, line, clozePrefix)
			case isA:
				report(lineNum, "second answer marker inside an answer")
				reset()
			case isSeparator, isBlank:
				emitQA()
				reset()
			default:
				block = append(block, line)
				track(line)
			}

		case readingCloze:
			switch {
			case isQ:
				emitCloze()
				reset()
				open(readingQuestion, lineNum, line, questionPrefix)
			case isC:
				emitCloze()
				reset()
				open(readingCloze, lineNum, line, clozePrefix)
			case isA:
				report(lineNum, "answer marker inside a cloze block")
				reset()
			case isSeparator, isBlank:
				emitCloze()
				reset()
			default:
				block = append(block, line)
				track(line)
			}
		}
	}

	switch current {
	case readingQuestion:
		report(len(lines), "input ended while a question was open")
	case readingAnswer:
		emitQA()
	case readingCloze:
		emitCloze()
	}

	return cards, issues
}

func rest(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// frontMatter consumes an optional leading metadata block delimited by ---
// lines and returns the deck name, the index of the first body line, and any
// diagnostics. The block body is YAML; the `name` key overrides the deck
// display name.
func frontMatter(fallback string, lines []string) (string, int, []Issue) {
	name := fallback
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return name, 0, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		raw := strings.Join(lines[1:i], "\n")
		meta, err := yaml.Parser().Unmarshal([]byte(raw))
		if err != nil {
			issue := Issue{Deck: fallback, Line: 1, Message: fmt.Sprintf("malformed front matter: %v", err)}
			return name, i + 1, []Issue{issue}
		}
		if v, ok := meta["name"].(string); ok && strings.TrimSpace(v) != "" {
			name = strings.TrimSpace(v)
		}
		return name, i + 1, nil
	}
	issue := Issue{Deck: fallback, Line: 1, Message: "front matter opened with --- but never closed"}
	return name, 1, []Issue{issue}
}

type span struct {
	start, end int
}

// clozeClean strips cloze brackets from a block, returning the cleaned text
// and the byte spans the brackets delimited. Markdown image brackets (![...])
// and escaped brackets (\[ and \]) stay literal text. An unclosed bracket
// drops that span only.
func clozeClean(text string) (string, []span) {
	var (
		clean  []byte
		spans  []span
		image  bool
		escape bool
	)
	start := -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '[':
			if image || escape {
				escape = false
				clean = append(clean, c)
			} else {
				start = len(clean)
			}
		case ']':
			switch {
			case image:
				image = false
				clean = append(clean, c)
			case escape:
				escape = false
				clean = append(clean, c)
			case start >= 0:
				spans = append(spans, span{start: start, end: len(clean)})
				start = -1
			}
		case '!':
			if !image && i+1 < len(text) && text[i+1] == '[' {
				image = true
			}
			clean = append(clean, c)
		case '\\':
			if !escape && i+1 < len(text) && (text[i+1] == '[' || text[i+1] == ']') {
				escape = true
			} else {
				clean = append(clean, c)
			}
		default:
			clean = append(clean, c)
		}
	}
	return string(clean), spans
}

// clozeCards splits one cloze block into its sibling cards, one per span.
// Each card's front masks only its own span; every other span renders as
// plain text on both sides. Siblings share a family digest derived from the
// raw block.
func clozeCards(deck, blockText string) ([]domain.Card, bool) {
	clean, spans := clozeClean(blockText)
	if len(spans) == 0 {
		return nil, false
	}
	family := cardhash.Family(deck, domain.Cloze, blockText)
	cards := make([]domain.Card, 0, len(spans))
	for _, sp := range spans {
		front := clean[:sp.start] + clozeMask + clean[sp.end:]
		back := clean[:sp.start] + clozeRevealOpen + clean[sp.start:sp.end] + clozeRevealClose + clean[sp.end:]
		card := domain.Card{
			Deck:   deck,
			Front:  front,
			Back:   back,
			Kind:   domain.Cloze,
			Family: family,
		}
		card.ID = cardhash.Sum(card.Deck, card.Kind, card.Front, card.Back)
		cards = append(cards, card)
	}
	return cards, true
}
