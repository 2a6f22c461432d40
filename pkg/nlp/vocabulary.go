package nlp

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

type VocabularyTerm struct {
	Term    string `yaml:"term"`
	Display string `yaml:"display"`
}

// Vocabulary maps folded phrases to the description shown to the user.
type Vocabulary struct {
	display  map[string]string
	maxWords int
}

type vocabularyFile struct {
	Terms []VocabularyTerm `yaml:"terms"`
}

func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary is invalid: %v", err))
	}
	return v
}

// LoadVocabulary reads a YAML vocabulary file. An empty path yields the embedded default.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	return ParseVocabulary(raw)
}

func ParseVocabulary(raw []byte) (*Vocabulary, error) {
	var f vocabularyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	return NewVocabulary(f.Terms)
}

func NewVocabulary(terms []VocabularyTerm) (*Vocabulary, error) {
	v := &Vocabulary{display: make(map[string]string, len(terms))}
	for _, t := range terms {
		key := cleanText(t.Term)
		if key == "" || strings.TrimSpace(t.Display) == "" {
			return nil, fmt.Errorf("vocabulary term %q needs both term and display", t.Term)
		}
		if _, dup := v.display[key]; dup {
			return nil, fmt.Errorf("duplicate vocabulary term %q", t.Term)
		}
		v.display[key] = t.Display

		if n := len(strings.Fields(key)); n > v.maxWords {
			v.maxWords = n
		}
	}
	return v, nil
}

// Lookup scans tokens left to right and returns the display name of the first
// known phrase, preferring the longest phrase starting at each position.
func (v *Vocabulary) Lookup(tokens []string) (string, bool) {
	for i := range tokens {
		for n := v.maxWords; n >= 1; n-- {
			if i+n > len(tokens) {
				continue
			}
			if d, ok := v.display[strings.Join(tokens[i:i+n], " ")]; ok {
				return d, true
			}
		}
	}
	return "", false
}

func (v *Vocabulary) Len() int {
	return len(v.display)
}
