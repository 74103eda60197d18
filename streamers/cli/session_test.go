package cli_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"chorus/streamers"
	"chorus/streamers/cli"
)

var _ = Describe("SessionHandler", func() {
	var (
		out *bytes.Buffer
		h   *cli.SessionHandler
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		h = cli.NewSessionHandler(cli.SessionOptions{Out: out})
	})

	It("prints roles, participant results and the final answer", func() {
		meta := streamers.Meta{SessionID: "sess-1"}
		h.SessionStarted(meta, "Explain tides to a child", []string{"alpha", "beta"})
		h.RolesAssigned(streamers.Meta{SessionID: "sess-1", Participant: "alpha"}, "explanatory", map[string]streamers.RoleInfo{
			"beta":  {Role: "Skeptic"},
			"alpha": {Role: "Explainer"},
		}, false)
		h.ParticipantStarted(streamers.Meta{Participant: "alpha"}, "Explainer")
		h.ParticipantCompleted(streamers.Meta{Participant: "alpha"}, "Explainer", "the moon pulls", streamers.UsageInfo{InputTokens: 3, OutputTokens: 4})
		h.ParticipantFailed(streamers.Meta{Participant: "beta"}, "Skeptic", "timeout", errors.New("no response within 1s"))
		h.SessionCompleted(meta, "the moon pulls the sea", false)

		text := out.String()
		Expect(text).To(ContainSubstring("Session sess-1"))
		Expect(text).To(ContainSubstring("from coordinator alpha"))
		Expect(text).To(ContainSubstring("[alpha] Explainer done"))
		Expect(text).To(ContainSubstring("3 in / 4 out tokens"))
		Expect(text).To(ContainSubstring("[beta] Skeptic FAILED (timeout): no response within 1s"))
		Expect(text).To(ContainSubstring("the moon pulls the sea"))
		Expect(text).NotTo(ContainSubstring("idle -> validating"))
	})

	It("prints state changes and contributions when verbose", func() {
		h = cli.NewSessionHandler(cli.SessionOptions{Out: out, Verbose: true})
		h.StateChanged(streamers.Meta{Step: 2}, "idle", "validating")
		h.ParticipantCompleted(streamers.Meta{Participant: "alpha"}, "Explainer", "full contribution text", streamers.UsageInfo{})

		Expect(out.String()).To(ContainSubstring("[2] idle -> validating"))
		Expect(out.String()).To(ContainSubstring("full contribution text"))
	})

	It("reports fallback roles and terminal failures", func() {
		h.RolesAssigned(streamers.Meta{}, "", map[string]streamers.RoleInfo{"alpha": {Role: "Analyst"}}, true)
		h.SessionFailed(streamers.Meta{}, "all_providers_failed", errors.New("all participants failed"))
		h.SessionCancelled(streamers.Meta{}, 1)

		Expect(out.String()).To(ContainSubstring("from fallback table"))
		Expect(out.String()).To(ContainSubstring("Session FAILED (all_providers_failed)"))
		Expect(out.String()).To(ContainSubstring("1 outcome(s) recorded"))
	})
})
