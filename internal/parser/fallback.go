package parser

import (
	"encoding/json"
	"strings"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

// Channels selects which contact channels a fallback record lists.
type Channels int

const (
	// ChannelsEmail lists email only.
	ChannelsEmail Channels = iota
	// ChannelsEmailLinkedIn lists email and LinkedIn.
	ChannelsEmailLinkedIn
	// ChannelsAll lists email, LinkedIn and GitHub.
	ChannelsAll
)

const (
	apologyConnect    = "I'm having trouble connecting right now, but you can always reach out to Yaniv directly!"
	apologyFormat     = "I received your message but had trouble formatting my response. Please try again."
	apologyStream     = "I received your message but had trouble with the streaming response. Please try again."
	followUpContact   = "How can I contact Yaniv?"
	followUpBestWay   = "What's the best way to contact Yaniv?"
	contactCaption    = "Ways to contact Yaniv"
	contactIDEmail    = "email"
	contactIDLinkedIn = "linkedin"
	contactIDGitHub   = "github"
)

var ownerChannels = []model.ContactChannel{
	{ID: contactIDEmail, Title: "Email", Subtitle: "Drop me a line", Value: "yanivvds@gmail.com", Link: "mailto:yanivvds@gmail.com"},
	{ID: contactIDLinkedIn, Title: "LinkedIn", Subtitle: "Let's connect", Value: "/in/yanivvds", Link: "https://www.linkedin.com/in/yanivvds/"},
	{ID: contactIDGitHub, Title: "GitHub", Subtitle: "Check out my code", Value: "@yanivvds", Link: "https://github.com/yanivvds"},
}

// ContactElement builds the contact element for a channel set. Email is always first.
func ContactElement(channels Channels) *model.InteractiveElement {
	n := 1
	switch channels {
	case ChannelsEmailLinkedIn:
		n = 2
	case ChannelsAll:
		n = 3
	}

	meta, _ := json.Marshal(model.Contact{
		Contacts: append([]model.ContactChannel(nil), ownerChannels[:n]...),
	})

	return &model.InteractiveElement{
		Type:     model.ElementContact,
		Content:  contactCaption,
		Metadata: meta,
	}
}

// TransportFallback is shown when the Completion Service cannot be reached or
// answers with a non-2xx status.
func TransportFallback() model.Record {
	return model.Record{
		Response:           apologyConnect,
		FollowUpQuestions:  []string{followUpBestWay},
		InteractiveElement: ContactElement(ChannelsEmailLinkedIn),
	}
}

// RelayErrorFallback is what the relay answers when the model provider fails.
func RelayErrorFallback() model.Record {
	return model.Record{
		Response:           apologyConnect,
		FollowUpQuestions:  []string{followUpBestWay},
		InteractiveElement: ContactElement(ChannelsAll),
	}
}

// StreamIncompleteFallback is used when a stream closes without a final record.
func StreamIncompleteFallback() model.Record {
	return model.Record{
		Response:           apologyStream,
		FollowUpQuestions:  []string{followUpContact},
		InteractiveElement: ContactElement(ChannelsEmail),
	}
}

// FormatFallback wraps text that is not a valid record. The raw text is kept
// verbatim as the response unless it is blank.
func FormatFallback(raw string, channels Channels) model.Record {
	response := raw
	if strings.TrimSpace(raw) == "" {
		response = apologyFormat
	}
	return model.Record{
		Response:           response,
		FollowUpQuestions:  []string{followUpContact},
		InteractiveElement: ContactElement(channels),
	}
}

// StreamFormatFallback is what the streaming relay sends as the final record
// when the model text does not decode.
func StreamFormatFallback(raw string) model.Record {
	response := raw
	if strings.TrimSpace(raw) == "" {
		response = "Response received but couldn't parse format."
	}
	return model.Record{
		Response:           response,
		FollowUpQuestions:  []string{followUpContact},
		InteractiveElement: ContactElement(ChannelsEmail),
	}
}
