package render

import (
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var codeFormatter = chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))

func codeStyle(theme Theme) *chroma.Style {
	name := "monokai"
	if theme == ThemeLight {
		name = "github"
	}
	style := styles.Get(name)
	if style == nil {
		style = styles.Fallback
	}
	return style
}

// highlight renders code as inline-styled HTML. ok is false when no lexer or
// formatter could handle it and the caller should show escaped text.
func highlight(code, language string, theme Theme) (template.HTML, bool) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", false
	}

	var buf strings.Builder
	if err := codeFormatter.Format(&buf, codeStyle(theme), iterator); err != nil {
		return "", false
	}
	return template.HTML(buf.String()), true
}
