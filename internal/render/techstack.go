package render

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

const defaultCategory = "Other"

type category struct {
	order int
	color string
}

var categories = map[string]category{
	"Frontend": {1, "#61DAFB"},
	"Backend":  {2, "#68D391"},
	"Language": {3, "#F6AD55"},
	"Database": {4, "#9F7AEA"},
	"Cloud":    {5, "#4FD1C7"},
	"Tools":    {6, "#FC8181"},
	"Other":    {7, "#A0AEC0"},
}

const unknownCategoryOrder = 999

type techChip struct {
	Name    string
	IconURL string
	Glyph   string
}

type techGroup struct {
	Name  string
	Color string
	Chips []techChip
}

type techStackView struct {
	Grouped bool
	Groups  []techGroup
	Chips   []techChip
}

// glyph is the text stand-in for a technology without a usable icon.
func glyph(t model.Technology) string {
	if t.Icon != "" {
		return t.Icon
	}
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(t.Name))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// groupTechnologies buckets technologies by category. Known categories come
// first in their fixed order, unknown ones follow in first-seen order.
func groupTechnologies(techs []model.Technology, icons IconResolver) techStackView {
	var groups []techGroup
	index := make(map[string]int)

	var all []techChip
	for _, t := range techs {
		name := strings.TrimSpace(t.Category)
		if name == "" {
			name = defaultCategory
		}

		chip := techChip{Name: t.Name, Glyph: glyph(t)}
		if icons.Usable(t.IconURL) {
			chip.IconURL = t.IconURL
		}
		all = append(all, chip)

		i, ok := index[name]
		if !ok {
			color := categories[defaultCategory].color
			if c, known := categories[name]; known {
				color = c.color
			}
			i = len(groups)
			index[name] = i
			groups = append(groups, techGroup{Name: name, Color: color})
		}
		groups[i].Chips = append(groups[i].Chips, chip)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return categoryOrder(groups[a].Name) < categoryOrder(groups[b].Name)
	})

	return techStackView{
		Grouped: len(groups) > 1,
		Groups:  groups,
		Chips:   all,
	}
}

func categoryOrder(name string) int {
	if c, ok := categories[name]; ok {
		return c.order
	}
	return unknownCategoryOrder
}
