package config_test

import (
	"chorus/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Participant", func() {
	models := []config.Model{{
		Name:          "anthropic",
		Provider:      config.ProviderAnthropic,
		AllowedModels: []string{"claude_sonnet_4"},
		APIKey:        "model-key",
	}}
	ptr := func(f float64) *float64 { return &f }

	Describe("parsing", func() {
		It("decodes model and gateway participants", func() {
			_, f := writeFixture("config.hcl", fullBaseHCL())
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Participants).To(HaveLen(2))

			claude := cfg.FindParticipant("claude")
			Expect(claude).NotTo(BeNil())
			Expect(claude.Model).To(Equal("anthropic.claude_sonnet_4"))
			Expect(claude.IsGateway()).To(BeFalse())
			Expect(claude.Coordinator).To(BeTrue())

			remote := cfg.FindParticipant("remote")
			Expect(remote.IsGateway()).To(BeTrue())
			Expect(remote.AccessPassword).To(Equal("hunter2"))
			Expect(*remote.InputPer1M).To(Equal(1.0))

			Expect(cfg.FindParticipant("nobody")).To(BeNil())
		})
	})

	DescribeTable("Validate",
		func(p config.Participant, fragment string) {
			err := p.Validate(models)
			if fragment == "" {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(ContainSubstring(fragment)))
		},
		Entry("model participant", config.Participant{Name: "a", Model: "anthropic.claude_sonnet_4"}, ""),
		Entry("gateway participant", config.Participant{Name: "a", Endpoint: "http://localhost:9000/chat"}, ""),
		Entry("neither", config.Participant{Name: "a"}, "one of model or endpoint"),
		Entry("both", config.Participant{Name: "a", Model: "anthropic.claude_sonnet_4", Endpoint: "http://x/chat"}, "mutually exclusive"),
		Entry("relative endpoint", config.Participant{Name: "a", Endpoint: "/chat"}, "invalid endpoint"),
		Entry("unknown model", config.Participant{Name: "a", Model: "anthropic.claude_opus_4"}, "not in allowed_models"),
		Entry("negative balance", config.Participant{Name: "a", Endpoint: "http://x/chat", Balance: ptr(-1)}, "balance"),
		Entry("negative pricing", config.Participant{Name: "a", Endpoint: "http://x/chat", OutputPer1M: ptr(-1)}, "pricing"),
		Entry("negative window", config.Participant{Name: "a", Endpoint: "http://x/chat", MemoryWindow: -2}, "memory_window"),
	)

	Describe("defaults", func() {
		It("falls back to the block name and the default balance", func() {
			p := config.Participant{Name: "alpha"}
			Expect(p.Label()).To(Equal("alpha"))
			Expect(p.StartingBalance()).To(Equal(config.DefaultBalance))

			p.DisplayName = "Alpha"
			p.Balance = ptr(0)
			Expect(p.Label()).To(Equal("Alpha"))
			Expect(p.StartingBalance()).To(Equal(0.0))
		})
	})

	Describe("ResolvePricing", func() {
		It("uses the model table for SDK participants", func() {
			p := config.Participant{Model: "anthropic.claude_sonnet_4"}
			want, ok := config.LookupPricing("claude-sonnet-4-20250514")
			Expect(ok).To(BeTrue())
			Expect(p.ResolvePricing(models)).To(Equal(want))
		})

		It("lets explicit rates win", func() {
			p := config.Participant{Model: "anthropic.claude_sonnet_4", InputPer1M: ptr(0.5)}
			pricing := p.ResolvePricing(models)
			Expect(pricing.InputPer1M).To(Equal(0.5))
			Expect(pricing.OutputPer1M).NotTo(BeZero())
		})

		It("prices gateways at zero unless configured", func() {
			p := config.Participant{Endpoint: "http://x/chat"}
			Expect(p.ResolvePricing(models)).To(Equal(config.ModelPricing{}))
		})
	})

	Describe("Credential", func() {
		It("prefers the participant key over the model key", func() {
			p := config.Participant{Model: "anthropic.claude_sonnet_4"}
			Expect(p.Credential(models)).To(Equal("model-key"))
			p.APIKey = "own-key"
			Expect(p.Credential(models)).To(Equal("own-key"))
		})

		It("uses the access password for gateways", func() {
			p := config.Participant{Endpoint: "http://x/chat", APIKey: "ignored", AccessPassword: "pw"}
			Expect(p.Credential(models)).To(Equal("pw"))
		})
	})
})
