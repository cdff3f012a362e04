package render

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(StaticIcons{}, logger.NewNop())
	require.NoError(t, err)
	return r
}

func element(typ model.ElementType, content, metadata string) *model.InteractiveElement {
	el := &model.InteractiveElement{Type: typ, Content: content}
	if metadata != "" {
		el.Metadata = json.RawMessage(metadata)
	}
	return el
}

func TestElement_BlankRendersNothing(t *testing.T) {
	r := newTestRenderer(t)

	assert.Empty(t, r.Element("m", nil, nil, ThemeDark))
	assert.Empty(t, r.Element("m", element(model.ElementNone, "anything", ""), nil, ThemeDark))
	assert.Empty(t, r.Element("m", element(model.ElementText, model.NoInteractiveContent, ""), nil, ThemeDark))
	assert.NotEmpty(t, r.Element("m", element(model.ElementText, "A note", ""), nil, ThemeDark))
}

func TestElement_UnknownTypeRendersGenericBlock(t *testing.T) {
	r := newTestRenderer(t)

	out := string(r.Element("m1", element("hologram", "<b>caption</b>", `{"beam":"<script>x</script>"}`), nil, ThemeDark))
	assert.Contains(t, out, "ie-fallback")
	assert.Contains(t, out, "&lt;b&gt;caption&lt;/b&gt;")
	assert.Contains(t, out, "beam")
	assert.NotContains(t, out, "<script>")
}

func TestElement_MalformedMetadataRendersGenericBlock(t *testing.T) {
	r := newTestRenderer(t)

	out := string(r.Element("m1", element(model.ElementSkills, "Skills", `{"skills":"lots"}`), nil, ThemeDark))
	assert.Contains(t, out, "ie-fallback")
	assert.Contains(t, out, "lots")
}

func TestElement_EveryKnownTypeRenders(t *testing.T) {
	r := newTestRenderer(t)
	metadata := map[model.ElementType]string{
		model.ElementContact:          `{"contacts":[{"id":"email","title":"Email","value":"a@b.c","link":"mailto:a@b.c"}]}`,
		model.ElementTechStack:        `{"technologies":[{"name":"Go"}]}`,
		model.ElementTimeline:         `{"events":[{"phase":"Build","duration":"2 weeks"}]}`,
		model.ElementCodeSnippet:      `{"language":"go","code":"package main"}`,
		model.ElementFeatureHighlight: `{"title":"Fast","impact":"2x"}`,
		model.ElementArchitecture:     `{"components":[{"name":"API"}],"diagram_svg":"<svg></svg>"}`,
		model.ElementMetrics:          `{"metrics":[{"label":"Users","value":100,"delta":5}]}`,
		model.ElementDemo:             `{"video_url":"https://cdn.example/demo.mp4"}`,
		model.ElementContributors:     `{"people":[{"name":"Ana"}]}`,
		model.ElementLinks:            `{"links":[{"title":"Repo","url":"https://github.com/x"}]}`,
		model.ElementRoadmap:          `{"items":[{"milestone":"v2","eta":"Q3"}]}`,
		model.ElementSkills:           `{"skills":[{"label":"Go","score":90},{"label":"TS","score":80},{"label":"SQL","score":70}]}`,
		model.ElementCaseStudy:        `{"title":"Churn","metric":{"label":"churn","before":"9%","after":"4%"}}`,
		model.ElementText:             ``,
	}

	for _, typ := range model.KnownElementTypes {
		if typ == model.ElementNone {
			continue
		}
		t.Run(string(typ), func(t *testing.T) {
			out := string(r.Element("m1", element(typ, "Caption", metadata[typ]), nil, ThemeLight))
			require.NotEmpty(t, out)
			assert.NotContains(t, out, "ie-fallback")
			assert.Contains(t, out, `data-type="`+string(typ)+`"`)
		})
	}
}

func TestElement_TechStackGrouping(t *testing.T) {
	r := newTestRenderer(t)
	el := element(model.ElementTechStack, "Stack", `{"technologies":[
		{"name":"Postgres","category":"Database"},
		{"name":"react","category":"Frontend","icon_url":"https://cdn.example/react.svg"},
		{"name":"Figma","category":"Design"},
		{"name":"go"}
	]}`)

	out := string(r.Element("m1", el, nil, ThemeDark))
	assert.Contains(t, out, "tech-groups")

	frontend := strings.Index(out, ">Frontend<")
	database := strings.Index(out, ">Database<")
	other := strings.Index(out, ">Other<")
	design := strings.Index(out, ">Design<")
	require.True(t, frontend >= 0 && database >= 0 && other >= 0 && design >= 0)
	assert.Less(t, frontend, database)
	assert.Less(t, database, other)
	assert.Less(t, other, design)

	assert.Contains(t, out, `src="https://cdn.example/react.svg"`)
	assert.Contains(t, out, `<span class="tech-glyph">G</span>`)
}

func TestGroupTechnologies_FlatWhenSingleCategory(t *testing.T) {
	view := groupTechnologies([]model.Technology{
		{Name: "React", Category: "Frontend"},
		{Name: "Vue", Category: "Frontend", Icon: "V!"},
	}, StaticIcons{})

	assert.False(t, view.Grouped)
	require.Len(t, view.Chips, 2)
	assert.Equal(t, "R", view.Chips[0].Glyph)
	assert.Equal(t, "V!", view.Chips[1].Glyph)
}

func TestElement_CodeSnippet(t *testing.T) {
	r := newTestRenderer(t)
	el := element(model.ElementCodeSnippet, "Handler", `{"language":"go","code":"func main() { fmt.Println(\"<hi>\") }","explanation":"Entry point"}`)

	out := string(r.Element("m1", el, nil, ThemeDark))
	assert.Contains(t, out, `class="copy"`)
	assert.Contains(t, out, `data-copy="func main() { fmt.Println(&#34;&lt;hi&gt;&#34;) }"`)
	assert.Contains(t, out, "<pre")
	assert.Contains(t, out, "Entry point")
	assert.NotContains(t, out, "<hi>")
}

func TestElement_Collapsed(t *testing.T) {
	r := newTestRenderer(t)
	view := NewViewState()
	el := element(model.ElementLinks, "Links", `{"links":[{"title":"Repo","url":"https://github.com/x"}]}`)

	assert.NotContains(t, string(r.Element("m1", el, view, ThemeDark)), " hidden")

	assert.True(t, view.Toggle("m1"))
	out := string(r.Element("m1", el, view, ThemeDark))
	assert.Contains(t, out, " hidden")
	assert.Contains(t, out, `aria-expanded="false"`)

	assert.NotContains(t, string(r.Element("m2", el, view, ThemeDark)), " hidden")
}

func TestRadarPoints(t *testing.T) {
	center := Point{100, 100}
	pts := RadarPoints([]float64{100, 50, 150, -10}, center, 80)
	require.Len(t, pts, 4)

	// First axis points straight up.
	assert.InDelta(t, 100, pts[0].X, 1e-9)
	assert.InDelta(t, 20, pts[0].Y, 1e-9)

	// Second axis at angle 0, half radius.
	assert.InDelta(t, 140, pts[1].X, 1e-9)
	assert.InDelta(t, 100, pts[1].Y, 1e-9)

	// Scores above 100 clamp to the rim.
	assert.InDelta(t, 100, pts[2].X, 1e-9)
	assert.InDelta(t, 180, pts[2].Y, 1e-9)

	// Negative scores clamp to the center.
	assert.InDelta(t, 100, pts[3].X, 1e-9)
	assert.InDelta(t, 100, pts[3].Y, 1e-9)

	for _, p := range pts {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	}
}

func TestBuildSkills_FewerThanThree(t *testing.T) {
	v := buildSkills([]model.Skill{{Label: "Go", Score: 120}})
	assert.False(t, v.Radar)
	require.Len(t, v.Bars, 1)
	assert.Equal(t, 100.0, v.Bars[0].Score)
}

func TestHTTPIconResolver_FailureNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "ok.svg") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	icons := NewHTTPIconResolver(srv.Client(), time.Second, logger.NewNop())
	icons.allowPrivate = true

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.False(t, icons.Usable(srv.URL+"/missing.svg"))
		}()
	}
	wg.Wait()
	assert.False(t, icons.Usable(srv.URL+"/missing.svg"))
	assert.Equal(t, int32(1), hits.Load())

	assert.True(t, icons.Usable(srv.URL+"/ok.svg"))
	assert.True(t, icons.Usable(srv.URL+"/ok.svg"))
	assert.Equal(t, int32(2), hits.Load())

	assert.False(t, icons.Usable("javascript:alert(1)"))
	assert.False(t, icons.Usable(""))
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPIconResolver_RefusesInternalHosts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	icons := NewHTTPIconResolver(nil, time.Second, logger.NewNop())
	for _, u := range []string{
		srv.URL + "/icon.svg",
		strings.Replace(srv.URL, "127.0.0.1", "localhost", 1) + "/icon.svg",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.1.2.3/logo.png",
		"http://[::1]:8080/logo.png",
		"http://0.0.0.0/logo.png",
	} {
		assert.False(t, icons.Usable(u), u)
	}
	assert.Zero(t, hits.Load())
}

func TestHTTPIconResolver_DialerRefusesLoopback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	// Skip the URL check so only the dialer stands between us and the server.
	icons := NewHTTPIconResolver(nil, time.Second, logger.NewNop())
	icons.allowPrivate = true

	assert.False(t, icons.Usable(srv.URL+"/icon.svg"))
	assert.Zero(t, hits.Load())
}

func TestRefusePrivate(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:80", "192.168.1.4:443", "[::ffff:10.0.0.1]:80", "[fe80::1]:443", "169.254.169.254:80"} {
		assert.ErrorIs(t, refusePrivate("tcp", addr, nil), errPrivateDestination, addr)
	}
	assert.NoError(t, refusePrivate("tcp", "93.184.216.34:443", nil))
	assert.NoError(t, refusePrivate("tcp6", "[2606:2800:220:1::1]:443", nil))
}

func TestElement_IconsProbedConcurrently(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	icons := NewHTTPIconResolver(srv.Client(), 2*time.Second, logger.NewNop())
	icons.allowPrivate = true
	r, err := New(icons, logger.NewNop())
	require.NoError(t, err)

	var techs []string
	for i := 0; i < 6; i++ {
		techs = append(techs, `{"name":"t`+strconv.Itoa(i)+`","icon_url":"`+srv.URL+`/`+strconv.Itoa(i)+`.svg"}`)
	}
	el := element(model.ElementTechStack, "Stack", `{"technologies":[`+strings.Join(techs, ",")+`]}`)

	start := time.Now()
	out := string(r.Element("m1", el, nil, ThemeDark))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int32(6), hits.Load())
	for i := 0; i < 6; i++ {
		assert.Contains(t, out, `src="`+srv.URL+`/`+strconv.Itoa(i)+`.svg"`)
	}
}

func TestElement_ToggleAlwaysPresent(t *testing.T) {
	r := newTestRenderer(t)

	out := string(r.Element("m1", element(model.ElementText, "A note", ""), nil, ThemeDark))
	assert.Contains(t, out, `class="ie-toggle"`)
	assert.Contains(t, out, ">Text</button>")

	out = string(r.Element("m2", element(model.ElementTechStack, "", `{"technologies":[{"name":"Go"}]}`), nil, ThemeDark))
	assert.Contains(t, out, `data-toggle="m2"`)
	assert.Contains(t, out, ">Tech stack</button>")

	out = string(r.Element("m3", element(model.ElementLinks, "Links", `{"links":[{"title":"Repo","url":"https://github.com/x"}]}`), nil, ThemeDark))
	assert.Contains(t, out, ">Links</button>")
}

func TestElement_UnrecognizedTypeLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r, err := New(StaticIcons{}, &logger.Logger{Logger: zap.New(core)})
	require.NoError(t, err)

	out := string(r.Element("m1", element("hologram", "Beam", `{}`), nil, ThemeDark))
	assert.Contains(t, out, "ie-fallback")

	entries := logs.FilterMessage("unrecognized element type").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hologram", entries[0].ContextMap()["type"])

	r.Element("m2", element(model.ElementLinks, "Links", `{"links":[]}`), nil, ThemeDark)
	assert.Len(t, logs.FilterMessage("unrecognized element type").All(), 1)
}

func TestMessage_AssistantMarkdownSanitised(t *testing.T) {
	r := newTestRenderer(t)
	msg := model.ChatMessage{
		ID:                "a1",
		Role:              model.RoleAssistant,
		Content:           "**Bold** <script>alert(1)</script>",
		FollowUpQuestions: []string{"What's next?"},
	}

	out := string(r.Message(msg, nil, ThemeDark))
	assert.Contains(t, out, "<strong>Bold</strong>")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `class="followup"`)
	assert.Contains(t, out, "What&#39;s next?")
}

func TestMessage_StreamingHidesElement(t *testing.T) {
	r := newTestRenderer(t)
	msg := model.ChatMessage{
		ID:                 "a1",
		Role:               model.RoleAssistant,
		Content:            "typing",
		IsStreaming:        true,
		FollowUpQuestions:  []string{"q"},
		InteractiveElement: element(model.ElementLinks, "Links", `{"links":[]}`),
	}

	out := string(r.Message(msg, nil, ThemeDark))
	assert.Contains(t, out, "msg-streaming")
	assert.NotContains(t, out, "ie-links")
	assert.NotContains(t, out, "followup")
}

func TestMessage_UserEscaped(t *testing.T) {
	r := newTestRenderer(t)
	out := string(r.Message(model.ChatMessage{ID: "u1", Role: model.RoleUser, Content: "<b>hi</b> **x**"}, nil, ThemeDark))
	assert.Contains(t, out, "&lt;b&gt;hi&lt;/b&gt; **x**")
}
