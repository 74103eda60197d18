package ledger_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"chorus/ledger"
)

var _ = Describe("Ledger", func() {
	var l *ledger.Ledger

	BeforeEach(func() {
		l = ledger.New(
			ledger.Account{ParticipantID: "alpha", InputRate: 0.25, OutputRate: 0.5, Balance: 1000},
			ledger.Account{ParticipantID: "beta", InputRate: 0.125, OutputRate: 0.0625, Balance: 500},
		)
	})

	Describe("RecordUsage", func() {
		It("charges input and output tokens at the participant's rates", func() {
			delta, err := l.RecordUsage("alpha", 120, 480)
			Expect(err).NotTo(HaveOccurred())

			expected := 120*0.25 + 480*0.5
			Expect(delta.Cost).To(Equal(expected))
			Expect(delta.NewBalance).To(Equal(1000 - expected))

			entry, err := l.Entry("alpha")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.InputTokens).To(Equal(int64(120)))
			Expect(entry.OutputTokens).To(Equal(int64(480)))
			Expect(entry.Cost).To(Equal(expected))
			Expect(entry.Calls).To(Equal(int64(1)))
		})

		It("accumulates across calls", func() {
			_, err := l.RecordUsage("beta", 10, 10)
			Expect(err).NotTo(HaveOccurred())
			_, err = l.RecordUsage("beta", 5, 0)
			Expect(err).NotTo(HaveOccurred())

			entry, _ := l.Entry("beta")
			Expect(entry.InputTokens).To(Equal(int64(15)))
			Expect(entry.OutputTokens).To(Equal(int64(10)))
			Expect(entry.Calls).To(Equal(int64(2)))
		})

		It("rejects unknown participants", func() {
			_, err := l.RecordUsage("nobody", 1, 1)
			Expect(err).To(MatchError(ledger.ErrUnknownParticipant))
		})

		It("rejects negative token counts", func() {
			_, err := l.RecordUsage("alpha", -1, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RecordFailure", func() {
		It("counts the call without charging", func() {
			Expect(l.RecordFailure("alpha")).To(Succeed())
			entry, _ := l.Entry("alpha")
			Expect(entry.Calls).To(Equal(int64(1)))
			Expect(entry.Failures).To(Equal(int64(1)))
			Expect(entry.Cost).To(BeZero())
			Expect(entry.Balance).To(Equal(1000.0))
		})
	})

	Describe("CheckBalance", func() {
		It("passes when the balance covers the projected cost", func() {
			Expect(l.CheckBalance("alpha", 999.5)).To(BeTrue())
			Expect(l.CheckBalance("alpha", 1000)).To(BeTrue())
		})

		It("fails when the projected cost exceeds the balance", func() {
			Expect(l.CheckBalance("alpha", 1000.5)).To(BeFalse())
		})

		It("fails for a non-positive balance even at zero projected cost", func() {
			empty := ledger.New(ledger.Account{ParticipantID: "broke", Balance: 0})
			Expect(empty.CheckBalance("broke", 0)).To(BeFalse())
		})

		It("fails for unknown participants", func() {
			Expect(l.CheckBalance("nobody", 0)).To(BeFalse())
		})
	})

	Describe("concurrent updates", func() {
		record := func(first, second string) {
			var wg sync.WaitGroup
			firstDone := make(chan struct{})
			wg.Add(2)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := l.RecordUsage(first, 100, 100)
				Expect(err).NotTo(HaveOccurred())
				close(firstDone)
			}()
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				<-firstDone
				_, err := l.RecordUsage(second, 100, 100)
				Expect(err).NotTo(HaveOccurred())
			}()
			wg.Wait()
		}

		expectIsolated := func() {
			alphaCost := 100*0.25 + 100*0.5
			betaCost := 100*0.125 + 100*0.0625

			alpha, _ := l.Entry("alpha")
			beta, _ := l.Entry("beta")
			Expect(alpha.Balance).To(Equal(1000 - alphaCost))
			Expect(beta.Balance).To(Equal(500 - betaCost))
			Expect(alpha.Cost).To(Equal(alphaCost))
			Expect(beta.Cost).To(Equal(betaCost))
		}

		It("keeps each participant's balance isolated when A lands first", func() {
			record("alpha", "beta")
			expectIsolated()
		})

		It("keeps each participant's balance isolated when B lands first", func() {
			record("beta", "alpha")
			expectIsolated()
		})

		It("loses no updates under contention", func() {
			var wg sync.WaitGroup
			for i := 0; i < 200; i++ {
				wg.Add(1)
				id := "alpha"
				if i%2 == 1 {
					id = "beta"
				}
				go func() {
					defer wg.Done()
					l.RecordUsage(id, 1, 1)
				}()
			}
			wg.Wait()

			alpha, _ := l.Entry("alpha")
			beta, _ := l.Entry("beta")
			Expect(alpha.Calls).To(Equal(int64(100)))
			Expect(beta.Calls).To(Equal(int64(100)))
			Expect(alpha.InputTokens).To(Equal(int64(100)))
		})
	})

	Describe("Snapshot and Restore", func() {
		It("returns entries sorted by participant", func() {
			snap := l.Snapshot()
			Expect(snap).To(HaveLen(2))
			Expect(snap[0].ParticipantID).To(Equal("alpha"))
			Expect(snap[1].ParticipantID).To(Equal("beta"))
		})

		It("restores persisted counters and ignores unknown participants", func() {
			l.Restore([]ledger.Entry{
				{ParticipantID: "alpha", InputTokens: 50, Calls: 3, Balance: 1.25},
				{ParticipantID: "ghost", Balance: 100},
			})
			entry, _ := l.Entry("alpha")
			Expect(entry.Balance).To(Equal(1.25))
			Expect(entry.Calls).To(Equal(int64(3)))
			Expect(l.Snapshot()).To(HaveLen(2))

			delta, err := l.RecordUsage("alpha", 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(delta.NewBalance).To(Equal(1.25 - 10*0.25))
		})
	})
})
