package rotation

import (
	"fmt"
	"slices"
	"strconv"
)

// sizeUnits maps every accepted unit spelling to its binary factor.
var sizeUnits = func() map[string]int64 {
	units := make(map[string]int64)
	for i, names := range [][]string{
		{"b", "byte", "bytes"},
		{"kb", "kilobyte", "kilobytes"},
		{"mb", "megabyte", "megabytes"},
		{"gb", "gigabyte", "gigabytes"},
		{"tb", "terabyte", "terabytes"},
		{"pb", "petabyte", "petabytes"},
	} {
		factor := int64(1) << (10 * i)
		for _, n := range names {
			units[n] = factor
		}
	}
	return units
}()

// MaxSizeClass recognizes "<number> <unit>" rules.
var MaxSizeClass = RuleClass{
	Name: "max-size",
	Match: func(tokens []Token) bool {
		if !slices.Equal(Kinds(tokens), []TokenKind{TokenNumber, TokenWord}) {
			return false
		}
		_, ok := sizeUnits[tokens[1].Value]
		return ok
	},
	Build: func(source string, tokens []Token) (Rule, error) {
		n, err := strconv.ParseFloat(tokens[0].Value, 64)
		if err != nil {
			return nil, parseErrorf(source, "bad number %q", tokens[0].Value)
		}
		limit := int64(n * float64(sizeUnits[tokens[1].Value]))
		if limit <= 0 {
			return nil, parseErrorf(source, "size limit must be > 0 bytes")
		}
		return MaxSize{Limit: limit, Source: source}, nil
	},
}

// MaxSize fires once the file is strictly larger than Limit bytes.
type MaxSize struct {
	Limit  int64
	Source string
}

// Check reports whether st.Size exceeds the limit.
func (m MaxSize) Check(st FileState) bool {
	return st.Size > m.Limit
}

func (m MaxSize) String() string {
	return fmt.Sprintf("max-size(%d bytes)", m.Limit)
}
