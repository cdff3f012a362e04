package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ElementType is the discriminant of an interactive element.
type ElementType string

const (
	ElementText             ElementType = "text"
	ElementNone             ElementType = "none"
	ElementContact          ElementType = "contact"
	ElementTechStack        ElementType = "tech_stack"
	ElementTimeline         ElementType = "timeline"
	ElementCodeSnippet      ElementType = "code_snippet"
	ElementFeatureHighlight ElementType = "feature_highlight"
	ElementArchitecture     ElementType = "architecture"
	ElementMetrics          ElementType = "metrics"
	ElementDemo             ElementType = "demo"
	ElementContributors     ElementType = "contributors"
	ElementLinks            ElementType = "links"
	ElementRoadmap          ElementType = "roadmap"
	ElementSkills           ElementType = "skills"
	ElementCaseStudy        ElementType = "case_study"
)

// NoInteractiveContent is the caption the model uses for a text element that shows nothing.
const NoInteractiveContent = "No interactive content required."

// KnownElementTypes lists every element type with a dedicated renderer.
var KnownElementTypes = []ElementType{
	ElementText, ElementNone, ElementContact, ElementTechStack, ElementTimeline,
	ElementCodeSnippet, ElementFeatureHighlight, ElementArchitecture, ElementMetrics,
	ElementDemo, ElementContributors, ElementLinks, ElementRoadmap, ElementSkills,
	ElementCaseStudy,
}

// Known reports whether t is one of the closed set of element types.
func (t ElementType) Known() bool {
	for _, k := range KnownElementTypes {
		if k == t {
			return true
		}
	}
	return false
}

// InteractiveElement is a typed visualization attached to an assistant turn.
// Metadata stays raw until Payload decodes it for the element's type.
type InteractiveElement struct {
	Type     ElementType     `json:"type"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the element.
func (e InteractiveElement) Clone() InteractiveElement {
	if e.Metadata != nil {
		e.Metadata = append(json.RawMessage(nil), e.Metadata...)
	}
	return e
}

// IsBlank reports the render-nothing states: none, or text with empty or sentinel content.
func (e *InteractiveElement) IsBlank() bool {
	if e == nil {
		return true
	}
	switch e.Type {
	case ElementNone:
		return true
	case ElementText:
		c := strings.TrimSpace(e.Content)
		return c == "" || c == NoInteractiveContent
	}
	return false
}

// Payload is implemented by every decoded metadata variant.
type Payload interface {
	ElementType() ElementType
}

// Payload decodes Metadata into the variant for e.Type. Unknown types decode to
// Unrecognized; malformed metadata for a known type returns an error.
func (e *InteractiveElement) Payload() (Payload, error) {
	var p Payload
	switch e.Type {
	case ElementText:
		p = &Text{}
	case ElementNone:
		return &None{}, nil
	case ElementContact:
		p = &Contact{}
	case ElementTechStack:
		p = &TechStack{}
	case ElementTimeline:
		p = &Timeline{}
	case ElementCodeSnippet:
		p = &CodeSnippet{}
	case ElementFeatureHighlight:
		p = &FeatureHighlight{}
	case ElementArchitecture:
		p = &Architecture{}
	case ElementMetrics:
		p = &Metrics{}
	case ElementDemo:
		p = &Demo{}
	case ElementContributors:
		p = &Contributors{}
	case ElementLinks:
		p = &Links{}
	case ElementRoadmap:
		p = &Roadmap{}
	case ElementSkills:
		p = &Skills{}
	case ElementCaseStudy:
		p = &CaseStudy{}
	default:
		return &Unrecognized{Type: e.Type, Raw: e.Metadata}, nil
	}

	raw := bytes.TrimSpace(e.Metadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", e.Type, err)
	}
	return p, nil
}

// FlexString accepts a JSON string, number or boolean and keeps its text form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*f = FlexString(string(b))
		return nil
	}
	return fmt.Errorf("unsupported value %s", string(b))
}

// Score is a 0..100 proficiency that accepts numbers or numeric strings.
type Score float64

// UnmarshalJSON implements json.Unmarshaler.
func (s *Score) UnmarshalJSON(b []byte) error {
	var f FlexString
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	text := strings.TrimSuffix(strings.TrimSpace(string(f)), "%")
	if text == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid score %q", string(f))
	}
	*s = Score(v)
	return nil
}

// Clamped returns the score bounded to 0..100.
func (s Score) Clamped() float64 {
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return float64(s)
}

// Text is the payload for plain text elements.
type Text struct{}

// None is the payload for elements that deliberately show nothing.
type None struct{}

// ContactChannel is one way to reach the site owner.
type ContactChannel struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Value    string `json:"value"`
	Link     string `json:"link"`
}

// Contact lists contact channels.
type Contact struct {
	Contacts []ContactChannel `json:"contacts"`
}

// Technology is one chip of a tech stack.
type Technology struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Icon     string `json:"icon,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// TechStack lists technologies.
type TechStack struct {
	Technologies []Technology `json:"technologies"`
}

// TimelineEvent is one project phase.
type TimelineEvent struct {
	Phase       string     `json:"phase"`
	Duration    FlexString `json:"duration,omitempty"`
	Description string     `json:"description,omitempty"`
	IconURL     string     `json:"icon_url,omitempty"`
}

// Timeline lists project phases in order.
type Timeline struct {
	Events []TimelineEvent `json:"events"`
}

// CodeSnippet is a short code example.
type CodeSnippet struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// FeatureHighlight describes one feature as challenge, solution and impact.
type FeatureHighlight struct {
	Title     string `json:"title"`
	Challenge string `json:"challenge,omitempty"`
	Solution  string `json:"solution,omitempty"`
	Impact    string `json:"impact,omitempty"`
	IconURL   string `json:"icon_url,omitempty"`
}

// ArchitectureComponent is one box of an architecture diagram.
type ArchitectureComponent struct {
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Architecture lists system components with an optional diagram.
type Architecture struct {
	Components []ArchitectureComponent `json:"components"`
	ImageURL   string                  `json:"image_url,omitempty"`
	DiagramSVG string                  `json:"diagram_svg,omitempty"`
}

// Metric is one labelled value.
type Metric struct {
	Label string     `json:"label"`
	Value FlexString `json:"value"`
	Unit  string     `json:"unit,omitempty"`
	Delta FlexString `json:"delta,omitempty"`
}

// Metrics lists key figures.
type Metrics struct {
	Metrics []Metric `json:"metrics"`
}

// Demo points at a video or animation.
type Demo struct {
	VideoURL string `json:"video_url,omitempty"`
	GifURL   string `json:"gif_url,omitempty"`
}

// Person is one contributor.
type Person struct {
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Contributors lists team members.
type Contributors struct {
	People []Person `json:"people"`
}

// Link is a titled URL.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Links lists related URLs.
type Links struct {
	Links []Link `json:"links"`
}

// RoadmapItem is one planned milestone.
type RoadmapItem struct {
	Milestone string     `json:"milestone"`
	ETA       FlexString `json:"eta,omitempty"`
	Details   string     `json:"details,omitempty"`
	IconURL   string     `json:"icon_url,omitempty"`
}

// Roadmap lists future milestones.
type Roadmap struct {
	Items []RoadmapItem `json:"items"`
}

// Skill is one labelled proficiency.
type Skill struct {
	Label string `json:"label"`
	Score Score  `json:"score"`
}

// Skills lists proficiencies for the radar chart.
type Skills struct {
	Skills []Skill `json:"skills"`
}

// CaseMetric is a before/after figure.
type CaseMetric struct {
	Label  string     `json:"label"`
	Before FlexString `json:"before,omitempty"`
	After  FlexString `json:"after,omitempty"`
}

// CaseStudy is a problem, solution and result summary.
type CaseStudy struct {
	Title    string      `json:"title"`
	Problem  string      `json:"problem,omitempty"`
	Solution string      `json:"solution,omitempty"`
	Result   string      `json:"result,omitempty"`
	Metric   *CaseMetric `json:"metric,omitempty"`
}

// Unrecognized carries an element type outside the closed set with its raw metadata.
type Unrecognized struct {
	Type ElementType
	Raw  json.RawMessage
}

func (*Text) ElementType() ElementType             { return ElementText }
func (*None) ElementType() ElementType             { return ElementNone }
func (*Contact) ElementType() ElementType          { return ElementContact }
func (*TechStack) ElementType() ElementType        { return ElementTechStack }
func (*Timeline) ElementType() ElementType         { return ElementTimeline }
func (*CodeSnippet) ElementType() ElementType      { return ElementCodeSnippet }
func (*FeatureHighlight) ElementType() ElementType { return ElementFeatureHighlight }
func (*Architecture) ElementType() ElementType     { return ElementArchitecture }
func (*Metrics) ElementType() ElementType          { return ElementMetrics }
func (*Demo) ElementType() ElementType             { return ElementDemo }
func (*Contributors) ElementType() ElementType     { return ElementContributors }
func (*Links) ElementType() ElementType            { return ElementLinks }
func (*Roadmap) ElementType() ElementType          { return ElementRoadmap }
func (*Skills) ElementType() ElementType           { return ElementSkills }
func (*CaseStudy) ElementType() ElementType        { return ElementCaseStudy }
func (u *Unrecognized) ElementType() ElementType   { return u.Type }
