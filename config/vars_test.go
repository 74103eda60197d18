package config_test

import (
	"os"

	"chorus/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("vars file", func() {
	It("stores, reads, and deletes values", func() {
		Expect(config.SetVar("openai_key", "sk-123")).To(Succeed())
		Expect(config.SetVar("region", "eu=west")).To(Succeed())

		val, err := config.GetVar("openai_key")
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal("sk-123"))

		val, err = config.GetVar("region")
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal("eu=west"))

		Expect(config.DeleteVar("openai_key")).To(Succeed())
		_, err = config.GetVar("openai_key")
		Expect(err).To(MatchError(ContainSubstring("not found")))
	})

	It("writes the file owner-only", func() {
		Expect(config.SetVar("secret_token", "x")).To(Succeed())
		path, err := config.GetVarsFilePath()
		Expect(err).NotTo(HaveOccurred())
		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))
	})

	It("rejects names that would corrupt the file", func() {
		Expect(config.SetVar("", "x")).To(HaveOccurred())
		Expect(config.SetVar("a=b", "x")).To(HaveOccurred())
	})

	It("errors when deleting a missing variable", func() {
		Expect(config.DeleteVar("ghost")).To(MatchError(ContainSubstring("not found")))
	})

	It("wins over the environment and the default", func() {
		GinkgoT().Setenv("CHORUS_VAR_WHO", "env")
		Expect(config.SetVar("who", "file")).To(Succeed())

		v := config.Variable{Name: "who", Default: "default"}
		val, err := config.ResolveVariableValue(&v)
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal("file"))

		_, f := writeFixture("vars.hcl", `variable "who" { default = "default" }`)
		cfg, err := config.LoadFile(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ResolvedVars["who"].AsString()).To(Equal("file"))
	})
})
