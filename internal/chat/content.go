package chat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

// Greeting opens every general conversation.
const Greeting = "Hi! I'm Yaniv's AI assistant. I can tell you about his background, projects, or answer questions about his work. What would you like to know?"

// GeneralProject is the project name that means no project context.
const GeneralProject = "general"

// Suggestions are offered until the visitor first interacts.
var Suggestions = []string{
	"What are Yaniv's main skills?",
	"Tell me about his education",
	"What kind of roles or companies is Yaniv interested in?",
	"What are some of Yaniv's favorite side projects?",
	"What's Yaniv's most unexpected hobby?",
	"If Yaniv could build any AI-powered product, what would it be?",
	"How can I contact Yaniv?",
}

// ProjectFollowUps are attached to every project introduction.
var ProjectFollowUps = []string{
	"What tech stack was used?",
	"What problem does this solve?",
	"What was Yaniv's favorite part?",
	"What challenges were overcome?",
}

var confidentialProjects = []string{
	"Kalff Fundraising Dashboard",
	"VibeGroup Recruitment Algorithm",
	"KPN Easy Mode",
}

// captionSets rotate per question so consecutive turns read differently.
var captionSets = [][]string{
	{
		"Thinking about your question...",
		"Searching through Yaniv's project files...",
		"Analyzing the best way to answer...",
		"Crafting a personalized response...",
		"Almost ready with the answer!",
	},
	{
		"Processing your inquiry...",
		"Scanning through project documentation...",
		"Evaluating the context...",
		"Formulating a thoughtful response...",
		"Finalizing the answer...",
	},
	{
		"Considering your question...",
		"Reviewing relevant project details...",
		"Assessing the information...",
		"Composing a comprehensive answer...",
		"Completing the response...",
	},
	{
		"Reflecting on your query...",
		"Exploring project archives...",
		"Examining the details...",
		"Developing a detailed response...",
		"Wrapping up the answer...",
	},
}

// Captions returns the loading captions for the n-th question of a session.
func Captions(n int) []string {
	if n < 0 {
		n = -n
	}
	return captionSets[n%len(captionSets)]
}

// ProjectRequest is the visitor message recorded when a project chat opens.
func ProjectRequest(project string) string {
	return fmt.Sprintf("Tell me more about the %s project", project)
}

// ProjectIntro is the canned answer shown when a chat opens on a project.
func ProjectIntro(project string) model.Record {
	if project == "" || project == GeneralProject {
		return model.Record{Response: Greeting, FollowUpQuestions: []string{}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi! I'm Yaniv's AI assistant. I can tell you about the %s project.", project)
	if slices.Contains(confidentialProjects, project) {
		b.WriteString(" Some details are confidential, but I can share technical highlights.")
	}
	b.WriteString(" Here are some questions you can ask:\n\n")
	for i, q := range ProjectFollowUps {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + q)
	}

	return model.Record{
		Response:           b.String(),
		FollowUpQuestions:  slices.Clone(ProjectFollowUps),
		InteractiveElement: &model.InteractiveElement{Type: model.ElementText},
	}
}
