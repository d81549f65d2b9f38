package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	v, err := DefaultVocabulary()
	require.NoError(t, err)
	return New(v)
}

func TestNormalize_YesNo(t *testing.T) {
	n := defaultNormalizer(t)
	cases := []struct {
		raw  string
		want Token
	}{
		{"yes", Yes},
		{"Yeah", Yes},
		{"  CORRECT. ", Yes},
		{"that's right", Yes},
		{"no", No},
		{"Nope!", No},
		{"i didn't", No},
		{"banana", Unrecognized},
		{"", Unrecognized},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, n.Normalize(tc.raw, CategoryYesNo), "raw=%q", tc.raw)
	}
}

func TestNormalize_EducationTopic(t *testing.T) {
	n := defaultNormalizer(t)
	cases := []struct {
		raw  string
		want Token
	}{
		{"one", Diet},
		{"1", Diet},
		{"Diet", Diet},
		{"two", Exercise},
		{"EXERCISE", Exercise},
		{"three", Tips},
		{"tips", Tips},
		{"leave now", LeaveNow},
		{"Leave   now.", LeaveNow},
		{"banana", Unrecognized},
		{"four", Unrecognized},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, n.Normalize(tc.raw, CategoryEducationTopic), "raw=%q", tc.raw)
	}
}

func TestNormalize_CategoryIsolation(t *testing.T) {
	n := defaultNormalizer(t)
	require.Equal(t, Unrecognized, n.Normalize("yes", CategoryEducationTopic))
	require.Equal(t, Unrecognized, n.Normalize("diet", CategoryYesNo))
}

func TestNormalize_Ordinal(t *testing.T) {
	n := defaultNormalizer(t)
	require.Equal(t, Token("1"), n.Normalize("first", CategoryOrdinal))
	require.Equal(t, Token("2"), n.Normalize("the second one", CategoryOrdinal))
	require.Equal(t, Unrecognized, n.Normalize("tenth", CategoryOrdinal))
}

func TestNormalize_Identifier(t *testing.T) {
	n := defaultNormalizer(t)
	cases := []struct {
		raw  string
		want Token
	}{
		{"ABC123", "ABC123"},
		{"abc 123", "ABC123"},
		{"e c one two three", "EC123"},
		{"E-C-4-5-6", "EC456"},
		{"oh seven", "07"},
		{"12.34", "1234"},
		{"   ", Unrecognized},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, n.Normalize(tc.raw, CategoryIdentifier), "raw=%q", tc.raw)
	}
}

func TestNormalize_NilNormalizer(t *testing.T) {
	var n *Normalizer
	require.Equal(t, Unrecognized, n.Normalize("yes", CategoryYesNo))
}

func TestNormalize_UnknownCategory(t *testing.T) {
	n := defaultNormalizer(t)
	require.Equal(t, Unrecognized, n.Normalize("yes", Category("mood")))
}

func TestDefaultVocabulary_HasEducationContent(t *testing.T) {
	v, err := DefaultVocabulary()
	require.NoError(t, err)
	for _, tok := range []Token{Diet, Exercise, Tips} {
		require.NotEmpty(t, v.Education[tok], "topic=%s", tok)
	}
}

func TestParseVocabulary_Validation(t *testing.T) {
	_, err := ParseVocabulary([]byte("synonyms: {}"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "yes_no")

	_, err = ParseVocabulary([]byte("synonyms: ["))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode vocabulary")
}

func TestLoadVocabulary_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	doc := `
synonyms:
  yes_no:
    "yes": ["si"]
    "no": ["non"]
  education_topic:
    diet: ["uno"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	n := New(v)
	require.Equal(t, Yes, n.Normalize("Si", CategoryYesNo))
	require.Equal(t, Diet, n.Normalize("uno", CategoryEducationTopic))
	require.Equal(t, Unrecognized, n.Normalize("yeah", CategoryYesNo))
}

func TestLoadVocabulary_EmptyPathUsesDefault(t *testing.T) {
	v, err := LoadVocabulary("")
	require.NoError(t, err)
	require.NotEmpty(t, v.Synonyms[CategoryYesNo])
}

func TestLoadVocabulary_MissingFile(t *testing.T) {
	_, err := LoadVocabulary(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read vocabulary")
}
