package prompts

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed coordinator.md
var coordinatorPromptTemplate string

//go:embed consolidator.md
var consolidatorPromptTemplate string

// Required section headings of a consolidated answer, in order
var ConsolidationSections = []string{
	"## Points of Consensus",
	"## Unique Insights",
	"## Resolved Contradictions",
	"## Integrated Answer",
}

// ParticipantInfo describes one participant to the coordinator
type ParticipantInfo struct {
	ID          string
	DisplayName string
	Description string
}

// Contribution is one successful output to be synthesized
type Contribution struct {
	Role        string
	DisplayName string
	Content     string
}

// GetCoordinatorPrompt returns the role-assignment prompt. Placeholders are
// filled in a single pass so text inside the query is never substituted.
func GetCoordinatorPrompt(query string, participants []ParticipantInfo) string {
	return strings.NewReplacer(
		"{{QUERY}}", query,
		"{{PARTICIPANTS}}", formatParticipants(participants),
	).Replace(coordinatorPromptTemplate)
}

// GetConsolidatorPrompt returns the synthesis prompt
func GetConsolidatorPrompt(query string, contributions []Contribution) string {
	return strings.NewReplacer(
		"{{QUERY}}", query,
		"{{CONTRIBUTIONS}}", FormatContributions(contributions),
	).Replace(consolidatorPromptTemplate)
}

func formatParticipants(participants []ParticipantInfo) string {
	var sb strings.Builder
	for _, p := range participants {
		sb.WriteString(fmt.Sprintf("- `%s` (%s)", p.ID, p.DisplayName))
		if p.Description != "" {
			sb.WriteString(": " + p.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatContributions renders each contribution under a role heading
func FormatContributions(contributions []Contribution) string {
	var sb strings.Builder
	for i, c := range contributions {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("### %s (%s)\n\n", c.Role, c.DisplayName))
		sb.WriteString(strings.TrimSpace(c.Content))
	}
	return sb.String()
}
