package ddl

// Style decorates SQL tokens for console output. It never changes semantics.
type Style interface {
	Keyword(s string) string
	Field(s string) string
	Table(s string) string
}

// PlainStyle leaves tokens untouched.
type PlainStyle struct{}

func (PlainStyle) Keyword(s string) string { return s }
func (PlainStyle) Field(s string) string   { return s }
func (PlainStyle) Table(s string) string   { return s }

// ColorStyle highlights tokens with ANSI escapes.
type ColorStyle struct{}

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32;1m"
	ansiWhite  = "\x1b[37;1m"
	ansiYellow = "\x1b[33;1m"
)

func (ColorStyle) Keyword(s string) string { return ansiGreen + s + ansiReset }
func (ColorStyle) Field(s string) string   { return ansiWhite + s + ansiReset }
func (ColorStyle) Table(s string) string   { return ansiYellow + s + ansiReset }
