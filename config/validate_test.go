package config_test

import (
	"chorus/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadAndValidate (end-to-end)", func() {

	Context("single-file config", func() {
		It("succeeds with a complete valid config", func() {
			hcl := fullBaseHCL() + `
collaboration {
  min_query_length    = 20
  participant_timeout = 30
}

storage {
  backend = "sqlite"
  path    = "state/chorus.db"
}

server {
  listen          = "127.0.0.1:9090"
  access_password = vars.test_api_key
}
`
			dir, _ := writeFixture("all.hcl", hcl)
			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Participants).To(HaveLen(2))
			Expect(cfg.Collaboration.Coordinator).To(Equal("claude"))
			Expect(cfg.Collaboration.Supervisor).To(Equal("claude"))
			Expect(cfg.Collaboration.MinQueryLength).To(Equal(20))
			Expect(cfg.Storage.Backend).To(Equal("sqlite"))
			Expect(cfg.Server.AccessPassword).To(Equal("test-key-123"))
			Expect(cfg.Server.RequestTimeout).To(Equal(300))
		})

		It("applies collaboration defaults without a collaboration block", func() {
			dir, _ := writeFixture("all.hcl", fullBaseHCL())
			cfg, err := config.LoadAndValidate(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Collaboration).NotTo(BeNil())
			Expect(cfg.Collaboration.ParticipantTimeout).To(Equal(120))
			Expect(cfg.Storage).To(BeNil())
			Expect(cfg.Server).To(BeNil())
		})
	})

	Context("model validation errors", func() {
		It("rejects an unsupported provider", func() {
			hcl := minimalVarsHCL() + `
model "bad" {
  provider       = "llama"
  allowed_models = ["llama_7b"]
  api_key        = vars.test_api_key
}
` + minimalModelHCL() + minimalParticipantsHCL()
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("model 'bad'")))
		})
	})

	Context("variable validation errors", func() {
		It("rejects a secret variable with a default", func() {
			hcl := fullBaseHCL() + `
variable "bad_secret" {
  secret  = true
  default = "oops"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("bad_secret"))
		})
	})

	Context("participant validation errors", func() {
		It("requires at least one participant", func() {
			dir, _ := writeFixture("config.hcl", minimalVarsHCL()+minimalModelHCL())
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("at least one participant")))
		})

		It("rejects duplicate names across files", func() {
			dir := writeFixtures(map[string]string{
				"base.hcl": fullBaseHCL(),
				"dupe.hcl": `
participant "remote" {
  endpoint = "https://other.example.com/chat"
}
`,
			})
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("declared more than once")))
		})

		It("names the participant in the error", func() {
			hcl := fullBaseHCL() + `
participant "broken" {
  endpoint = "not a url"
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("participant 'broken'")))
		})
	})

	Context("collaboration validation errors", func() {
		It("rejects a coordinator without the capability", func() {
			hcl := fullBaseHCL() + `
collaboration {
  coordinator = participants.remote
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("not coordinator-capable")))
		})

		It("fails when no participant can supervise", func() {
			hcl := minimalVarsHCL() + minimalModelHCL() + `
participant "solo" {
  model       = models.anthropic.claude_sonnet_4
  coordinator = true
}
`
			dir, _ := writeFixture("config.hcl", hcl)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("no supervisor")))
		})
	})

	Context("settings validation errors", func() {
		It("rejects a postgres backend without a dsn", func() {
			dir, _ := writeFixture("config.hcl", fullBaseHCL()+`storage { backend = "postgres" }`)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("storage")))
		})

		It("rejects a server block without a password", func() {
			dir, _ := writeFixture("config.hcl", fullBaseHCL()+`server { listen = ":1" }`)
			_, err := config.LoadAndValidate(dir)
			Expect(err).To(MatchError(ContainSubstring("access_password")))
		})
	})
})
