package collab_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"chorus/collab"
	"chorus/llm"
)

var _ = Describe("Error taxonomy", func() {
	DescribeTable("KindOf maps provider statuses",
		func(status int, kind collab.Kind) {
			err := fmt.Errorf("call: %w", &llm.APIError{Provider: "x", StatusCode: status})
			Expect(collab.KindOf(err)).To(Equal(kind))
		},
		Entry("400", http.StatusBadRequest, collab.KindInvalidRequest),
		Entry("401", http.StatusUnauthorized, collab.KindAuth),
		Entry("403", http.StatusForbidden, collab.KindAuth),
		Entry("402", http.StatusPaymentRequired, collab.KindInsufficientBalance),
		Entry("404", http.StatusNotFound, collab.KindTransport),
		Entry("408", http.StatusRequestTimeout, collab.KindTimeout),
		Entry("429", http.StatusTooManyRequests, collab.KindRateLimited),
		Entry("500", http.StatusInternalServerError, collab.KindTransport),
		Entry("503", http.StatusServiceUnavailable, collab.KindTransport),
		Entry("504", http.StatusGatewayTimeout, collab.KindTimeout),
	)

	It("maps context errors", func() {
		Expect(collab.KindOf(context.DeadlineExceeded)).To(Equal(collab.KindTimeout))
		Expect(collab.KindOf(fmt.Errorf("wrapped: %w", context.Canceled))).To(Equal(collab.KindCancelled))
	})

	It("treats unknown errors as transport failures", func() {
		Expect(collab.KindOf(errors.New("connection reset"))).To(Equal(collab.KindTransport))
		Expect(collab.KindOf(nil)).To(BeEmpty())
	})

	It("matches sentinels by kind", func() {
		err := fmt.Errorf("outer: %w", &collab.Error{Kind: collab.KindRateLimited, Participant: "alpha"})
		Expect(errors.Is(err, collab.ErrRateLimited)).To(BeTrue())
		Expect(errors.Is(err, collab.ErrTimeout)).To(BeFalse())
	})

	It("reports all participant errors when every provider failed", func() {
		err := &collab.AllProvidersFailedError{Errors: map[string]error{
			"alpha": &collab.Error{Kind: collab.KindTimeout, Participant: "alpha"},
			"beta":  &collab.Error{Kind: collab.KindAuth, Participant: "beta"},
		}}
		Expect(collab.KindOf(err)).To(Equal(collab.KindAllProvidersFailed))
		Expect(errors.Is(err, collab.ErrAllProvidersFailed)).To(BeTrue())
		Expect(errors.Is(err, collab.ErrTimeout)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("alpha: timeout"))
		Expect(err.Error()).To(ContainSubstring("beta: auth"))
	})

	It("classifies an all-failed session before any participant kind", func() {
		var err error = fmt.Errorf("session: %w", &collab.AllProvidersFailedError{Errors: map[string]error{
			"alpha": &collab.Error{Kind: collab.KindTimeout, Participant: "alpha"},
		}})
		// participant kinds stay reachable through errors.Is
		Expect(errors.Is(err, collab.ErrTimeout)).To(BeTrue())
		Expect(collab.KindOf(err)).To(Equal(collab.KindAllProvidersFailed))
		Expect(collab.HTTPStatus(collab.KindOf(err))).To(Equal(http.StatusBadGateway))
	})

	It("maps kinds to endpoint statuses", func() {
		Expect(collab.HTTPStatus(collab.KindValidation)).To(Equal(http.StatusBadRequest))
		Expect(collab.HTTPStatus(collab.KindAuth)).To(Equal(http.StatusUnauthorized))
		Expect(collab.HTTPStatus(collab.KindInsufficientBalance)).To(Equal(http.StatusPaymentRequired))
		Expect(collab.HTTPStatus(collab.KindTimeout)).To(Equal(http.StatusRequestTimeout))
		Expect(collab.HTTPStatus(collab.KindRateLimited)).To(Equal(http.StatusTooManyRequests))
		Expect(collab.HTTPStatus(collab.KindTransport)).To(Equal(http.StatusInternalServerError))
	})
})
