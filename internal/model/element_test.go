package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractiveElement_IsBlank(t *testing.T) {
	tests := []struct {
		name string
		el   *InteractiveElement
		want bool
	}{
		{"nil element", nil, true},
		{"none type", &InteractiveElement{Type: ElementNone, Content: "ignored"}, true},
		{"text empty", &InteractiveElement{Type: ElementText}, true},
		{"text sentinel", &InteractiveElement{Type: ElementText, Content: NoInteractiveContent}, true},
		{"text with content", &InteractiveElement{Type: ElementText, Content: "Note"}, false},
		{"tech stack", &InteractiveElement{Type: ElementTechStack}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.el.IsBlank())
		})
	}
}

func TestInteractiveElement_PayloadTechStack(t *testing.T) {
	el := &InteractiveElement{
		Type:     ElementTechStack,
		Content:  "Stack",
		Metadata: json.RawMessage(`{"technologies":[{"name":"React","category":"Frontend","icon_url":"https://cdn.example/react.svg"},{"name":"Go"}]}`),
	}

	p, err := el.Payload()
	require.NoError(t, err)

	stack, ok := p.(*TechStack)
	require.True(t, ok)
	require.Len(t, stack.Technologies, 2)
	assert.Equal(t, "React", stack.Technologies[0].Name)
	assert.Equal(t, "Frontend", stack.Technologies[0].Category)
	assert.Equal(t, "", stack.Technologies[1].Category)
}

func TestInteractiveElement_PayloadUnknownType(t *testing.T) {
	el := &InteractiveElement{
		Type:     "something_new",
		Content:  "caption",
		Metadata: json.RawMessage(`{"a":1}`),
	}

	p, err := el.Payload()
	require.NoError(t, err)

	u, ok := p.(*Unrecognized)
	require.True(t, ok)
	assert.Equal(t, ElementType("something_new"), u.ElementType())
	assert.JSONEq(t, `{"a":1}`, string(u.Raw))
	assert.False(t, ElementType("something_new").Known())
}

func TestInteractiveElement_PayloadMalformed(t *testing.T) {
	el := &InteractiveElement{
		Type:     ElementSkills,
		Metadata: json.RawMessage(`{"skills":"lots"}`),
	}

	_, err := el.Payload()
	require.Error(t, err)
}

func TestInteractiveElement_PayloadMissingMetadata(t *testing.T) {
	el := &InteractiveElement{Type: ElementLinks}

	p, err := el.Payload()
	require.NoError(t, err)
	assert.Empty(t, p.(*Links).Links)
}

func TestFlexValues(t *testing.T) {
	var m Metrics
	err := json.Unmarshal([]byte(`{"metrics":[{"label":"DAUs","value":12400},{"label":"p95","value":"120ms","delta":-3.5}]}`), &m)
	require.NoError(t, err)
	assert.Equal(t, FlexString("12400"), m.Metrics[0].Value)
	assert.Equal(t, FlexString("120ms"), m.Metrics[1].Value)
	assert.Equal(t, FlexString("-3.5"), m.Metrics[1].Delta)

	var s Skills
	err = json.Unmarshal([]byte(`{"skills":[{"label":"Go","score":"90"},{"label":"Rust","score":130},{"label":"Web","score":"75%"}]}`), &s)
	require.NoError(t, err)
	assert.Equal(t, 90.0, s.Skills[0].Score.Clamped())
	assert.Equal(t, 100.0, s.Skills[1].Score.Clamped())
	assert.Equal(t, 75.0, s.Skills[2].Score.Clamped())
}

func TestChatMessage_ApplyRecordCopies(t *testing.T) {
	rec := Record{
		Response:           "done",
		FollowUpQuestions:  []string{"next?"},
		InteractiveElement: &InteractiveElement{Type: ElementNone},
	}
	msg := ChatMessage{ID: "1", Role: RoleAssistant, IsStreaming: true}

	msg.ApplyRecord(rec)
	rec.FollowUpQuestions[0] = "mutated"

	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "done", msg.Content)
	assert.Equal(t, []string{"next?"}, msg.FollowUpQuestions)
	require.NotNil(t, msg.InteractiveElement)
	assert.Equal(t, ElementNone, msg.InteractiveElement.Type)
}
