package classmap

import (
	"strings"
	"unicode"
)

// ElementNameFunc derives an element name from a Go field name.
type ElementNameFunc func(field string) string

// Stock element-name conventions.
var (
	// LowerCase lowercases the field name ("FirstName" -> "firstname"), as
	// the mongo driver's struct codec does.
	LowerCase ElementNameFunc = strings.ToLower
	// CamelCase lowercases the leading word ("FirstName" -> "firstName",
	// "URLPath" -> "urlPath").
	CamelCase ElementNameFunc = camelCase
	// SnakeCase splits words with underscores ("FirstName" -> "first_name",
	// "HTTPServer" -> "http_server").
	SnakeCase ElementNameFunc = snakeCase
)

// Conventions apply to every class mapped through AutoMap.
type Conventions struct {
	// ElementNames names untagged fields. Nil means LowerCase.
	ElementNames ElementNameFunc
	// IgnoreExtraElements makes unknown elements skipped instead of rejected.
	IgnoreExtraElements bool
	// IgnoreIfDefault omits zero-valued members on encode.
	IgnoreIfDefault bool
	// Discriminator is the convention for classes that do not set their own.
	// Nil means ScalarConvention("_t").
	Discriminator DiscriminatorConvention
}

func (c Conventions) elementName(field string) string {
	if c.ElementNames == nil {
		return LowerCase(field)
	}
	return c.ElementNames(field)
}

func camelCase(s string) string {
	r := []rune(s)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == len(r) || n == 1:
	default:
		// keep the capital starting the next word: "URLPath" -> "url" + "Path"
		if unicode.IsLower(r[n]) {
			n--
		}
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

func snakeCase(s string) string {
	r := []rune(s)
	b := &strings.Builder{}
	for i, c := range r {
		if unicode.IsUpper(c) && i > 0 {
			prev := r[i-1]
			nextLower := i+1 < len(r) && unicode.IsLower(r[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(c))
	}
	return b.String()
}
