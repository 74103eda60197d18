package llm_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"chorus/llm"
)

func chunkChannel(chunks ...llm.StreamChunk) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

var _ = Describe("Fragments", func() {
	var (
		results []llm.StreamResult
		finish  func(llm.StreamResult)
	)

	BeforeEach(func() {
		results = nil
		finish = func(r llm.StreamResult) { results = append(results, r) }
	})

	It("yields fragments in order and finishes once", func() {
		f := llm.NewFragments(chunkChannel(
			llm.StreamChunk{Content: "a"},
			llm.StreamChunk{Content: ""},
			llm.StreamChunk{Content: "b"},
			llm.StreamChunk{Done: true, Usage: &llm.Usage{OutputTokens: 2}},
		), finish)

		var got []string
		for frag := range f.All() {
			got = append(got, frag)
		}
		Expect(got).To(Equal([]string{"a", "b"}))
		Expect(results).To(HaveLen(1))
		Expect(results[0].Text).To(Equal("ab"))
		Expect(results[0].Err).NotTo(HaveOccurred())
		Expect(results[0].Usage.OutputTokens).To(Equal(2))
	})

	It("is single use", func() {
		f := llm.NewFragments(chunkChannel(llm.StreamChunk{Content: "a"}, llm.StreamChunk{Done: true}), finish)
		text, err := f.Collect()
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("a"))

		for range f.All() {
			Fail("second range must yield nothing")
		}
		_, err = f.Collect()
		Expect(err).To(MatchError(llm.ErrStreamConsumed))
		Expect(results).To(HaveLen(1))
	})

	It("reports an abandoned stream", func() {
		f := llm.NewFragments(chunkChannel(
			llm.StreamChunk{Content: "a"},
			llm.StreamChunk{Content: "b"},
			llm.StreamChunk{Done: true},
		), finish)
		for range f.All() {
			break
		}
		Expect(results).To(HaveLen(1))
		Expect(results[0].Err).To(MatchError(llm.ErrStreamAbandoned))
		Expect(results[0].Text).To(Equal("a"))
	})

	It("reports a stream closed without completion", func() {
		f := llm.NewFragments(chunkChannel(llm.StreamChunk{Content: "a"}), finish)
		_, err := f.Collect()
		Expect(err).To(MatchError(llm.ErrStreamTruncated))
	})

	It("stops at the first error chunk", func() {
		boom := errors.New("boom")
		f := llm.NewFragments(chunkChannel(
			llm.StreamChunk{Content: "a"},
			llm.StreamChunk{Error: boom, Done: true},
			llm.StreamChunk{Content: "never"},
		), finish)
		text, err := f.Collect()
		Expect(text).To(Equal("a"))
		Expect(err).To(MatchError(boom))
	})
})
