package prompts_test

import (
	"strings"

	"chorus/collab/internal/prompts"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// section returns the text between heading and the next "## " heading
func section(prompt, heading string) string {
	_, rest, found := strings.Cut(prompt, heading+"\n")
	Expect(found).To(BeTrue(), "missing heading %q", heading)
	body, _, _ := strings.Cut(rest, "\n## ")
	return body
}

var _ = Describe("Prompts", func() {
	participants := []prompts.ParticipantInfo{
		{ID: "alpha", DisplayName: "Alpha", Description: "careful reasoner"},
		{ID: "beta", DisplayName: "Beta"},
	}
	contributions := []prompts.Contribution{
		{Role: "Analyst", DisplayName: "Alpha", Content: "alpha-body"},
		{Role: "Critic", DisplayName: "Beta", Content: "beta-body"},
	}

	Describe("GetCoordinatorPrompt", func() {
		It("fills the query and the participant list", func() {
			p := prompts.GetCoordinatorPrompt("How do tides work?", participants)
			Expect(section(p, "## Query")).To(ContainSubstring("How do tides work?"))
			Expect(section(p, "## Participants")).To(ContainSubstring("- `alpha` (Alpha): careful reasoner"))
			Expect(section(p, "## Participants")).To(ContainSubstring("- `beta` (Beta)"))
			Expect(p).NotTo(ContainSubstring("{{"))
		})

		It("leaves placeholder text inside the query alone", func() {
			query := "List things {{PARTICIPANTS}} and {{CONTRIBUTIONS}} now"
			p := prompts.GetCoordinatorPrompt(query, participants)
			Expect(section(p, "## Query")).To(ContainSubstring(query))
			Expect(section(p, "## Query")).NotTo(ContainSubstring("`alpha`"))
			Expect(section(p, "## Participants")).To(ContainSubstring("`alpha`"))
			Expect(section(p, "## Participants")).NotTo(ContainSubstring("{{PARTICIPANTS}}"))
		})
	})

	Describe("GetConsolidatorPrompt", func() {
		It("fills the query and every contribution under its role heading", func() {
			p := prompts.GetConsolidatorPrompt("Compare two databases", contributions)
			Expect(section(p, "## Original Query")).To(ContainSubstring("Compare two databases"))
			Expect(p).To(ContainSubstring("### Analyst (Alpha)\n\nalpha-body"))
			Expect(p).To(ContainSubstring("### Critic (Beta)\n\nbeta-body"))
			for _, heading := range prompts.ConsolidationSections {
				Expect(p).To(ContainSubstring(heading))
			}
		})

		It("leaves placeholder text inside the query alone", func() {
			query := "Compare these {{CONTRIBUTIONS}} and {{PARTICIPANTS}} please"
			p := prompts.GetConsolidatorPrompt(query, contributions)
			Expect(section(p, "## Original Query")).To(ContainSubstring(query))
			Expect(section(p, "## Original Query")).NotTo(ContainSubstring("alpha-body"))

			contrib := p[strings.Index(p, "## Contributions\n"):]
			Expect(contrib).To(ContainSubstring("alpha-body"))
			Expect(strings.Index(p, "alpha-body")).To(BeNumerically(">", strings.Index(p, "## Contributions")))
			Expect(strings.Count(p, "{{CONTRIBUTIONS}}")).To(Equal(1))
		})
	})
})
