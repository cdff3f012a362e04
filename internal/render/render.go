// Package render turns chat messages and their interactive elements into HTML fragments.
package render

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

const fallbackTemplate = "fallback"

// Renderer renders messages. It is safe for concurrent use.
type Renderer struct {
	tmpl   *template.Template
	icons  IconResolver
	md     *markdown
	logger *logger.Logger
}

// New parses the embedded templates.
func New(icons IconResolver, log *logger.Logger) (*Renderer, error) {
	if icons == nil {
		icons = StaticIcons{}
	}

	tmpl, err := template.New("render").Funcs(template.FuncMap{
		"add":   func(a, b int) int { return a + b },
		"score": func(f float64) string { return strconv.FormatFloat(f, 'f', 0, 64) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Renderer{
		tmpl:   tmpl,
		icons:  icons,
		md:     newMarkdown(),
		logger: log,
	}, nil
}

type elementFrame struct {
	MessageID string
	Type      string
	Title     string
	Theme     Theme
	Collapsed bool
	Body      template.HTML
}

// Element renders el for the message messageID. Blank elements render to
// nothing. Unknown types and undecodable metadata render as a generic block.
func (r *Renderer) Element(messageID string, el *model.InteractiveElement, view *ViewState, theme Theme) template.HTML {
	if el.IsBlank() {
		return ""
	}

	name, data := r.elementData(el, theme)
	body, err := r.execute(name, data)
	if err != nil {
		r.logger.Warn("element render failed", zap.String("type", string(el.Type)), zap.Error(err))
		name = fallbackTemplate
		if body, err = r.execute(name, newFallbackView(el)); err != nil {
			return ""
		}
	}

	title := strings.TrimSpace(el.Content)
	if el.Type == model.ElementText || title == "" {
		title = typeLabel(el.Type)
	}

	out, err := r.execute("element", elementFrame{
		MessageID: messageID,
		Type:      name,
		Title:     title,
		Theme:     theme,
		Collapsed: view.Collapsed(messageID),
		Body:      body,
	})
	if err != nil {
		r.logger.Warn("element frame render failed", zap.Error(err))
		return ""
	}
	return out
}

// typeLabel turns "tech_stack" into "Tech stack".
func typeLabel(t model.ElementType) string {
	label := strings.TrimSpace(strings.ReplaceAll(string(t), "_", " "))
	if label == "" {
		return "Details"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// elementData picks the template and view model for el.
func (r *Renderer) elementData(el *model.InteractiveElement, theme Theme) (string, any) {
	if !el.Type.Known() {
		r.logger.Info("unrecognized element type", zap.String("type", string(el.Type)))
		return fallbackTemplate, newFallbackView(el)
	}

	p, err := el.Payload()
	if err != nil {
		r.logger.Debug("element metadata did not decode", zap.String("type", string(el.Type)), zap.Error(err))
		return fallbackTemplate, newFallbackView(el)
	}
	if pf, ok := r.icons.(prefetcher); ok {
		if urls := iconURLs(p); len(urls) > 1 {
			pf.Prefetch(urls)
		}
	}

	switch v := p.(type) {
	case *model.Text:
		return "text", el.Content
	case *model.Contact:
		return "contact", v
	case *model.TechStack:
		return "tech_stack", groupTechnologies(v.Technologies, r.icons)
	case *model.Timeline:
		for i := range v.Events {
			v.Events[i].IconURL = r.iconOrEmpty(v.Events[i].IconURL)
		}
		return "timeline", v
	case *model.Roadmap:
		for i := range v.Items {
			v.Items[i].IconURL = r.iconOrEmpty(v.Items[i].IconURL)
		}
		return "roadmap", v
	case *model.CodeSnippet:
		return "code_snippet", newCodeView(v, theme)
	case *model.FeatureHighlight:
		v.IconURL = r.iconOrEmpty(v.IconURL)
		return "feature_highlight", v
	case *model.Architecture:
		for i := range v.Components {
			v.Components[i].IconURL = r.iconOrEmpty(v.Components[i].IconURL)
		}
		return "architecture", newArchitectureView(v)
	case *model.Metrics:
		return "metrics", newMetricsView(v)
	case *model.Demo:
		return "demo", v
	case *model.Contributors:
		for i := range v.People {
			v.People[i].AvatarURL = r.iconOrEmpty(v.People[i].AvatarURL)
		}
		return "contributors", v
	case *model.Links:
		return "links", v
	case *model.Skills:
		return "skills", buildSkills(v.Skills)
	case *model.CaseStudy:
		return "case_study", v
	}
	return fallbackTemplate, newFallbackView(el)
}

// iconURLs lists every remote image a payload refers to.
func iconURLs(p any) []string {
	var urls []string
	add := func(u string) {
		if u != "" {
			urls = append(urls, u)
		}
	}
	switch v := p.(type) {
	case *model.TechStack:
		for _, t := range v.Technologies {
			add(t.IconURL)
		}
	case *model.Timeline:
		for _, e := range v.Events {
			add(e.IconURL)
		}
	case *model.Roadmap:
		for _, i := range v.Items {
			add(i.IconURL)
		}
	case *model.FeatureHighlight:
		add(v.IconURL)
	case *model.Architecture:
		for _, c := range v.Components {
			add(c.IconURL)
		}
	case *model.Contributors:
		for _, person := range v.People {
			add(person.AvatarURL)
		}
	}
	return urls
}

func (r *Renderer) iconOrEmpty(u string) string {
	if r.icons.Usable(u) {
		return u
	}
	return ""
}

type fallbackView struct {
	Content  string
	Metadata string
}

func newFallbackView(el *model.InteractiveElement) fallbackView {
	v := fallbackView{Content: el.Content}
	raw := bytes.TrimSpace(el.Metadata)
	if len(raw) == 0 {
		return v
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		v.Metadata = string(raw)
		return v
	}
	v.Metadata = buf.String()
	return v
}

type codeView struct {
	Language    string
	Code        string
	Highlighted template.HTML
	Explanation string
}

func newCodeView(c *model.CodeSnippet, theme Theme) codeView {
	v := codeView{Language: c.Language, Code: c.Code, Explanation: c.Explanation}
	if h, ok := highlight(c.Code, c.Language, theme); ok {
		v.Highlighted = h
	}
	return v
}

type architectureView struct {
	*model.Architecture
	Diagram template.URL
}

// newArchitectureView embeds an inline SVG as an image data URL so its
// markup never becomes part of the page.
func newArchitectureView(a *model.Architecture) architectureView {
	v := architectureView{Architecture: a}
	if svg := strings.TrimSpace(a.DiagramSVG); svg != "" {
		v.Diagram = template.URL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)))
	}
	return v
}

type metricView struct {
	model.Metric
	Trend string
}

func newMetricsView(m *model.Metrics) []metricView {
	out := make([]metricView, len(m.Metrics))
	for i, metric := range m.Metrics {
		out[i] = metricView{Metric: metric, Trend: trend(string(metric.Delta))}
	}
	return out
}

func trend(delta string) string {
	d := strings.TrimSuffix(strings.TrimSpace(delta), "%")
	f, err := strconv.ParseFloat(d, 64)
	switch {
	case err != nil || f == 0:
		return "flat"
	case f > 0:
		return "up"
	default:
		return "down"
	}
}

type messageView struct {
	ID        string
	Role      string
	Streaming bool
	Body      template.HTML
	Element   template.HTML
	FollowUps []string
}

// Message renders a whole chat message: answer text, element and follow-up
// buttons. Assistant text is treated as markdown; user text is escaped.
func (r *Renderer) Message(msg model.ChatMessage, view *ViewState, theme Theme) template.HTML {
	mv := messageView{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Streaming: msg.IsStreaming,
	}

	if msg.Role == model.RoleAssistant {
		mv.Body = r.md.toHTML(msg.Content)
		if !msg.IsStreaming {
			mv.Element = r.Element(msg.ID, msg.InteractiveElement, view, theme)
			mv.FollowUps = msg.FollowUpQuestions
		}
	} else {
		mv.Body = template.HTML(template.HTMLEscapeString(msg.Content))
	}

	out, err := r.execute("message", mv)
	if err != nil {
		r.logger.Warn("message render failed", zap.String("message_id", msg.ID), zap.Error(err))
		return ""
	}
	return out
}
