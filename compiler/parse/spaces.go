package parse

type Spaces uint64

var (
	SpaceTab = NewSpaces(' ', '\t')
	SpaceAll = NewSpaces(' ', '\t', '\r', '\n')
)

func NewSpaces(skip ...byte) (ss Spaces) {
	for _, q := range skip {
		if q >= 64 {
			panic("too high char code")
		}

		ss |= 1 << q
	}

	return
}

func (s Spaces) Skip(b []byte, st int) (i int) {
	i = st

	for i < len(b) && b[i] < 64 && s&(1<<b[i]) != 0 {
		i++
	}

	return
}

// skipAll skips spaces, newlines and line comments.
func skipAll(b []byte, i int) int {
	for {
		i = SpaceAll.Skip(b, i)

		if i+1 < len(b) && b[i] == '/' && b[i+1] == '/' {
			i = skipLine(b, i)
			continue
		}

		return i
	}
}

func skipLine(b []byte, i int) int {
	for i < len(b) && b[i] != '\n' {
		i++
	}

	return i
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && isIdent(b[i]) {
		i++
	}

	return i
}

func isIdent(c byte) bool {
	return c == '_' || c == '.' ||
		c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9'
}
