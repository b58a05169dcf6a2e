package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("  1.5 KiloBytes ")
	require.Len(t, tokens, 2)
	assert.Equal(t, Token{Kind: TokenNumber, Value: "1.5", Position: 2}, tokens[0])
	assert.Equal(t, Token{Kind: TokenWord, Value: "kilobytes", Position: 6}, tokens[1])

	assert.Equal(t, []TokenKind{TokenNumber, TokenWord}, Kinds(Tokenize("3kb")))
	assert.Equal(t, []TokenKind{TokenWord}, Kinds(Tokenize("file.size_limit")))
	assert.Equal(t, []TokenKind{TokenSymbol, TokenNumber, TokenWord}, Kinds(Tokenize("-3 mb")))
	assert.Equal(t, []TokenKind{TokenNumber, TokenSymbol}, Kinds(Tokenize("3.")))
	assert.Empty(t, Tokenize("   "))
}

func TestMaxSize_Units(t *testing.T) {
	tests := []struct {
		rule  string
		limit int64
	}{
		{"1 b", 1},
		{"10 bytes", 10},
		{"3 kilobytes", 3 << 10},
		{"3kb", 3 << 10},
		{"2 MB", 2 << 20},
		{"1 megabyte", 1 << 20},
		{"1.5 gb", 3 << 29},
		{"1 terabytes", 1 << 40},
		{"1 pb", 1 << 50},
	}

	classes := DefaultClasses()
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			rule, err := classes.ParseRule(tt.rule)
			require.NoError(t, err)
			ms, ok := rule.(MaxSize)
			require.True(t, ok)
			assert.Equal(t, tt.limit, ms.Limit)
		})
	}
}

func TestMaxSize_RejectsNonPositive(t *testing.T) {
	for _, rule := range []string{"0 kb", "0.0000001 b"} {
		_, err := DefaultClasses().ParseRule(rule)
		assert.True(t, IsParseError(err), rule)
	}
}

func TestMaxSize_CheckIsStrict(t *testing.T) {
	ms := MaxSize{Limit: 100}
	assert.False(t, ms.Check(FileState{Size: 99}))
	assert.False(t, ms.Check(FileState{Size: 100}), "exactly the limit does not fire")
	assert.True(t, ms.Check(FileState{Size: 101}))
	assert.Equal(t, "max-size(100 bytes)", ms.String())
}

func TestParse_Policy(t *testing.T) {
	p, err := Parse("3 kilobytes >> archive/")
	require.NoError(t, err)
	assert.Equal(t, "archive/", p.Destination)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, int64(3072), p.Rules[0].(MaxSize).Limit)

	p, err = Parse("1 mb; 2 kb, 10 b")
	require.NoError(t, err)
	assert.Equal(t, DefaultDestination, p.Destination)
	assert.Len(t, p.Rules, 3)
	assert.True(t, p.Fires(FileState{Size: 11}))
	assert.False(t, p.Fires(FileState{Size: 10}))
	assert.Equal(t, "max-size(1048576 bytes), max-size(2048 bytes), max-size(10 bytes) >> logs/", p.String())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"only separators", " , ; "},
		{"unknown unit", "3 parsecs"},
		{"missing unit", "300"},
		{"empty destination", "3 kb >>  "},
		{"two destinations", "3 kb >> a >> b"},
		{"bad rule among good", "3 kb, every day"},
		{"zero size", "0 mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source)
			require.Error(t, err)
			assert.True(t, IsParseError(err))
		})
	}
}

type sizeOver struct{ n int64 }

func (s sizeOver) Check(st FileState) bool { return st.Size > s.n }
func (s sizeOver) String() string { return "custom" }

func TestClasses_CustomClass(t *testing.T) {
	classes := DefaultClasses()
	err := classes.Register(RuleClass{
		Name: "lines",
		Match: func(tokens []Token) bool {
			return len(tokens) == 2 && tokens[1].Value == "lines"
		},
		Build: func(string, []Token) (Rule, error) {
			return sizeOver{n: 1}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"max-size", "lines"}, classes.Names())

	p, err := classes.Parse("10 lines >> /tmp/archive")
	require.NoError(t, err)
	assert.Equal(t, "custom", p.Rules[0].String())

	// First match wins: "kb" still belongs to max-size.
	p, err = classes.Parse("10 kb")
	require.NoError(t, err)
	assert.IsType(t, MaxSize{}, p.Rules[0])
}

func TestClasses_RegisterValidation(t *testing.T) {
	classes := DefaultClasses()
	assert.Error(t, classes.Register(RuleClass{Name: "incomplete"}))
	assert.Error(t, classes.Register(MaxSizeClass), "duplicate name")
}
