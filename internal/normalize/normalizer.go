// Package normalize maps raw slot values to canonical tokens.
package normalize

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Category selects which part of the synonym table an input is matched against.
type Category string

const (
	CategoryYesNo          Category = "yes_no"
	CategoryEducationTopic Category = "education_topic"
	CategoryIdentifier     Category = "identifier"
	CategoryOrdinal        Category = "ordinal"
)

// Token is a canonical value. Unrecognized is the zero Token.
type Token string

const (
	Unrecognized Token = ""

	Yes Token = "yes"
	No  Token = "no"

	Diet     Token = "diet"
	Exercise Token = "exercise"
	Tips     Token = "tips"
	LeaveNow Token = "leave_now"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Vocabulary is the configurable synonym table plus the static education content.
type Vocabulary struct {
	Synonyms        map[Category]map[Token][]string `yaml:"synonyms"`
	IdentifierWords map[string]string               `yaml:"identifier_words"`
	Education       map[Token]string                `yaml:"education"`
}

// DefaultVocabulary returns the vocabulary compiled into the binary.
func DefaultVocabulary() (Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// LoadVocabulary reads a vocabulary file. An empty path yields the default.
func LoadVocabulary(path string) (Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultVocabulary()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("normalize: read vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(raw)
}

// ParseVocabulary decodes a YAML vocabulary document.
func ParseVocabulary(raw []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("normalize: decode vocabulary: %w", err)
	}
	if len(v.Synonyms[CategoryYesNo]) == 0 {
		return Vocabulary{}, errors.New("normalize: vocabulary has no yes_no synonyms")
	}
	if len(v.Synonyms[CategoryEducationTopic]) == 0 {
		return Vocabulary{}, errors.New("normalize: vocabulary has no education_topic synonyms")
	}
	return v, nil
}

// Normalizer is a pure lookup over a Vocabulary. It is safe for concurrent use.
type Normalizer struct {
	index      map[Category]map[string]Token
	identWords map[string]string
}

// New builds a Normalizer. When a phrase is listed under two tokens of the
// same category the first one in sorted token order wins.
func New(v Vocabulary) *Normalizer {
	n := &Normalizer{
		index:      make(map[Category]map[string]Token, len(v.Synonyms)),
		identWords: make(map[string]string, len(v.IdentifierWords)),
	}
	for cat, tokens := range v.Synonyms {
		idx := make(map[string]Token)
		for _, tok := range sortedTokens(tokens) {
			for _, phrase := range tokens[tok] {
				key := clean(phrase)
				if _, dup := idx[key]; key == "" || dup {
					continue
				}
				idx[key] = tok
			}
		}
		n.index[cat] = idx
	}
	for word, ch := range v.IdentifierWords {
		n.identWords[clean(word)] = ch
	}
	return n
}

// Normalize maps raw to a canonical token of the expected category.
// Unknown input yields Unrecognized; it never fails.
func (n *Normalizer) Normalize(raw string, expected Category) Token {
	if n == nil {
		return Unrecognized
	}
	if expected == CategoryIdentifier {
		return Token(n.identifier(raw))
	}
	return n.index[expected][clean(raw)]
}

// identifier canonicalizes a spoken pairing code: separators are dropped,
// digit words become digits and letters are upper-cased. No format check is
// applied; a malformed code simply fails lookup later.
func (n *Normalizer) identifier(raw string) string {
	var b strings.Builder
	for _, field := range strings.FieldsFunc(strings.ToLower(raw), isSeparator) {
		if ch, ok := n.identWords[field]; ok {
			b.WriteString(ch)
			continue
		}
		for _, r := range field {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToUpper(r))
			}
		}
	}
	return b.String()
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-' || r == '.' || r == ',' || r == '_'
}

func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '\''
	})
	return strings.Join(strings.Fields(s), " ")
}

func sortedTokens(m map[Token][]string) []Token {
	out := make([]Token, 0, len(m))
	for tok := range m {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
