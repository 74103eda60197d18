package config_test

import (
	"chorus/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Settings blocks", func() {

	Describe("CollaborationConfig", func() {
		participants := []config.Participant{
			{Name: "a"},
			{Name: "b", Coordinator: true},
			{Name: "c", Coordinator: true, Supervisor: true},
		}

		It("defaults to the first capable participants", func() {
			var c config.CollaborationConfig
			c.Defaults(participants)
			Expect(c.Coordinator).To(Equal("b"))
			Expect(c.Supervisor).To(Equal("c"))
			Expect(c.MinQueryLength).To(Equal(10))
			Expect(c.ParticipantTimeout).To(Equal(120))
			Expect(c.Validate(participants)).To(Succeed())
		})

		It("keeps explicit choices", func() {
			c := config.CollaborationConfig{Coordinator: "c", MinQueryLength: 3, ParticipantTimeout: 5}
			c.Defaults(participants)
			Expect(c.Coordinator).To(Equal("c"))
			Expect(c.MinQueryLength).To(Equal(3))
			Expect(c.ParticipantTimeout).To(Equal(5))
		})

		DescribeTable("Validate",
			func(c *config.CollaborationConfig, fragment string) {
				Expect(c.Validate(participants)).To(MatchError(ContainSubstring(fragment)))
			},
			Entry("nil block", (*config.CollaborationConfig)(nil), "missing collaboration"),
			Entry("no coordinator", &config.CollaborationConfig{Supervisor: "c"}, "no coordinator"),
			Entry("unknown coordinator", &config.CollaborationConfig{Coordinator: "z", Supervisor: "c"}, "not a declared participant"),
			Entry("incapable coordinator", &config.CollaborationConfig{Coordinator: "a", Supervisor: "c"}, "not coordinator-capable"),
			Entry("no supervisor", &config.CollaborationConfig{Coordinator: "b"}, "no supervisor"),
			Entry("incapable supervisor", &config.CollaborationConfig{Coordinator: "b", Supervisor: "b"}, "not supervisor-capable"),
		)
	})

	Describe("StorageConfig", func() {
		It("defaults to the memory backend", func() {
			var s config.StorageConfig
			s.Defaults()
			Expect(s.Backend).To(Equal("memory"))
			Expect(s.Path).To(Equal(".chorus/store.db"))
			Expect(s.Validate()).To(Succeed())
		})

		It("requires a dsn for postgres", func() {
			s := config.StorageConfig{Backend: "postgres"}
			Expect(s.Validate()).To(MatchError(ContainSubstring("dsn")))
			s.DSN = "postgres://localhost/chorus"
			Expect(s.Validate()).To(Succeed())
		})

		It("rejects unknown backends", func() {
			s := config.StorageConfig{Backend: "redis"}
			Expect(s.Validate()).To(MatchError(ContainSubstring("unknown backend")))
		})
	})

	Describe("ServerConfig", func() {
		It("fills the listen address and timeout", func() {
			s := config.ServerConfig{AccessPassword: "pw"}
			s.Defaults()
			Expect(s.Listen).To(Equal(":8080"))
			Expect(s.RequestTimeout).To(Equal(300))
			Expect(s.Validate()).To(Succeed())
		})

		It("requires an access password", func() {
			Expect((&config.ServerConfig{}).Validate()).To(MatchError(ContainSubstring("access_password")))
		})
	})
})
