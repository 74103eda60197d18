package collab_test

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"chorus/collab"
	"chorus/ledger"
	"chorus/llm"
	"chorus/memory"
)

var _ = Describe("EstimateTokens", func() {
	It("is zero for the empty string", func() {
		Expect(collab.EstimateTokens("")).To(Equal(0))
	})

	It("rounds up to whole tokens", func() {
		Expect(collab.EstimateTokens("a")).To(Equal(1))
		Expect(collab.EstimateTokens("abcd")).To(Equal(1))
		Expect(collab.EstimateTokens("abcde")).To(Equal(2))
	})

	It("counts characters, not bytes", func() {
		Expect(collab.EstimateTokens("ñññññ")).To(Equal(2))
	})

	It("equals ceil(length/4) for random strings", func() {
		rng := rand.New(rand.NewSource(42))
		alphabet := []rune("abc xyz éü日本語😀\n\t")
		for i := 0; i < 500; i++ {
			n := rng.Intn(300)
			runes := make([]rune, n)
			for j := range runes {
				runes[j] = alphabet[rng.Intn(len(alphabet))]
			}
			s := string(runes)
			want := int(math.Ceil(float64(utf8.RuneCountInString(s)) / 4))
			Expect(collab.EstimateTokens(s)).To(Equal(want), "input %q", s)
		}
	})
})

var _ = Describe("Adapter", func() {
	var (
		ctx     context.Context
		l       *ledger.Ledger
		adapter *collab.Adapter
		fake    *fakeProvider
		p       *collab.Participant
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = newFake(reply("a response of some length"))
		p = newParticipant("alpha", fake)
		l = ledger.New(p.Account())
		adapter = collab.NewAdapter(l)
	})

	It("returns content and charges estimated tokens", func() {
		prompt := "Explain the core idea simply.\n\nWhat is entanglement?"
		out := adapter.Invoke(ctx, p, prompt, nil)
		Expect(out.Success).To(BeTrue())
		Expect(out.Content).To(Equal("a response of some length"))

		in := collab.EstimateTokens(prompt)
		outTokens := collab.EstimateTokens("a response of some length")
		Expect(out.Usage.InputTokens).To(Equal(in))
		Expect(out.Usage.OutputTokens).To(Equal(outTokens))

		cost := float64(in)*p.InputRate + float64(outTokens)*p.OutputRate
		Expect(out.Usage.Cost).To(Equal(cost))

		entry, err := l.Entry("alpha")
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Cost).To(Equal(cost))
		Expect(entry.Balance).To(Equal(p.Balance - cost))
		Expect(out.Balance).To(Equal(entry.Balance))
	})

	It("sends memory as prior turns", func() {
		history := []memory.Exchange{{Prompt: "earlier question", Response: "earlier answer"}}
		adapter.Invoke(ctx, p, "follow up", history)

		Expect(fake.requests).To(HaveLen(1))
		msgs := fake.requests[0].Messages
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[0]).To(Equal(llm.Message{Role: llm.RoleUser, Content: "earlier question"}))
		Expect(msgs[1]).To(Equal(llm.Message{Role: llm.RoleAssistant, Content: "earlier answer"}))
		Expect(msgs[2].Content).To(Equal("follow up"))
		Expect(fake.requests[0].Model).To(Equal("alpha-model"))
	})

	It("fails without a credential and makes no call", func() {
		p.Credential = ""
		out := adapter.Invoke(ctx, p, "hello there", nil)
		Expect(out.Success).To(BeFalse())
		Expect(out.ErrorKind).To(Equal(collab.KindProviderNotConfigured))
		Expect(fake.calls.Load()).To(BeZero())
	})

	It("fails with insufficient balance and makes no call", func() {
		broke := newParticipant("broke", fake)
		broke.Balance = 0
		l.Open(broke.Account())

		out := adapter.Invoke(ctx, broke, "hello there", nil)
		Expect(out.ErrorKind).To(Equal(collab.KindInsufficientBalance))
		Expect(fake.calls.Load()).To(BeZero())

		entry, _ := l.Entry("broke")
		Expect(entry.Failures).To(Equal(int64(1)))
		Expect(entry.Cost).To(BeZero())
	})

	It("maps provider errors and records a failure without cost", func() {
		fake.chat = failWith(429)
		out := adapter.Invoke(ctx, p, "hello there", nil)
		Expect(out.ErrorKind).To(Equal(collab.KindRateLimited))
		Expect(out.Err.Participant).To(Equal("alpha"))

		entry, _ := l.Entry("alpha")
		Expect(entry.Failures).To(Equal(int64(1)))
		Expect(entry.InputTokens).To(BeZero())
		Expect(entry.Balance).To(Equal(p.Balance))
	})

	It("treats blank content as a transport failure", func() {
		fake.chat = reply("   ")
		out := adapter.Invoke(ctx, p, "hello there", nil)
		Expect(out.ErrorKind).To(Equal(collab.KindTransport))
	})

	It("leaves the ledger untouched when cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		out := adapter.Invoke(cctx, p, "hello there", nil)
		Expect(out.ErrorKind).To(Equal(collab.KindCancelled))

		entry, _ := l.Entry("alpha")
		Expect(entry.Calls).To(BeZero())
	})

	Describe("Stream", func() {
		It("yields fragments and records usage when the sequence ends", func() {
			stream, err := adapter.Stream(ctx, p, collab.Call{Prompt: "stream this please"})
			Expect(err).NotTo(HaveOccurred())

			var parts []string
			for frag := range stream.All() {
				parts = append(parts, frag)
			}
			Expect(strings.Join(parts, "")).To(Equal("a response of some length"))
			Expect(parts).To(HaveLen(2))

			out := stream.Outcome()
			Expect(out.Success).To(BeTrue())
			Expect(out.Usage.OutputTokens).To(Equal(collab.EstimateTokens("a response of some length")))

			entry, _ := l.Entry("alpha")
			Expect(entry.Calls).To(Equal(int64(1)))
			Expect(entry.Cost).To(Equal(out.Usage.Cost))
		})

		It("cannot be consumed twice", func() {
			stream, err := adapter.Stream(ctx, p, collab.Call{Prompt: "stream this please"})
			Expect(err).NotTo(HaveOccurred())
			_, err = stream.Collect()
			Expect(err).NotTo(HaveOccurred())

			count := 0
			for range stream.All() {
				count++
			}
			Expect(count).To(BeZero())
			_, err = stream.Collect()
			Expect(err).To(MatchError(llm.ErrStreamConsumed))
		})

		It("returns precheck failures before opening the stream", func() {
			p.Credential = ""
			_, err := adapter.Stream(ctx, p, collab.Call{Prompt: "stream this please"})
			Expect(err).To(MatchError(collab.ErrProviderNotConfigured))
		})

		It("returns classified connection errors", func() {
			fake.chat = failWith(401)
			_, err := adapter.Stream(ctx, p, collab.Call{Prompt: "stream this please"})
			Expect(collab.KindOf(err)).To(Equal(collab.KindAuth))
		})
	})
})
