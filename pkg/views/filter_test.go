package views

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

var _ = Describe("Filter.Matches", func() {
	event := dcb.Event{Type: "Deposited", Tags: []dcb.Tag{{Key: "wallet_id", Value: "W1"}, {Key: "currency", Value: "USD"}}}

	It("matches every event with no clauses", func() {
		Expect(NewFilter().Matches(event)).To(BeTrue())
	})

	It("narrows by event type", func() {
		Expect(NewFilter("Deposited").Matches(event)).To(BeTrue())
		Expect(NewFilter("Withdrawn").Matches(event)).To(BeFalse())
	})

	It("requires every listed key regardless of value", func() {
		Expect(NewFilter().WithRequired("wallet_id").Matches(event)).To(BeTrue())
		Expect(NewFilter().WithRequired("account_id").Matches(event)).To(BeFalse())
	})

	It("matches anyOf when at least one exact tag is present", func() {
		f := NewFilter().WithAnyOf(dcb.NewTag("currency", "USD"), dcb.NewTag("currency", "EUR"))
		Expect(f.Matches(event)).To(BeTrue())
		Expect(NewFilter().WithAnyOf(dcb.NewTag("currency", "GBP")).Matches(event)).To(BeFalse())
	})

	It("requires every exact tag to match", func() {
		f := NewFilter().WithExact(dcb.NewTag("wallet_id", "W1"), dcb.NewTag("currency", "USD"))
		Expect(f.Matches(event)).To(BeTrue())
		Expect(NewFilter().WithExact(dcb.NewTag("currency", "EUR")).Matches(event)).To(BeFalse())
	})

	It("requires all clause kinds to hold simultaneously", func() {
		f := NewFilter("Deposited").
			WithRequired("wallet_id").
			WithAnyOf(dcb.NewTag("currency", "USD")).
			WithExact(dcb.NewTag("currency", "USD"))
		Expect(f.Matches(event)).To(BeTrue())
	})
})

var _ = Describe("Filter.query", func() {
	It("narrows by exact tags when present", func() {
		q := NewFilter("Deposited").WithExact(dcb.NewTag("wallet_id", "W1")).query()
		Expect(q.Items).To(HaveLen(1))
		Expect(q.Items[0].Tags).To(ConsistOf(dcb.NewTag("wallet_id", "W1")))
	})

	It("expands anyOf into one query item per tag", func() {
		q := NewFilter("Deposited").WithAnyOf(dcb.NewTag("currency", "USD"), dcb.NewTag("currency", "EUR")).query()
		Expect(q.Items).To(HaveLen(2))
	})

	It("falls back to the type filter alone for required-only filters", func() {
		q := NewFilter("Deposited").WithRequired("wallet_id").query()
		Expect(q.Items).To(HaveLen(1))
		Expect(q.Items[0].Tags).To(BeEmpty())
		Expect(q.Items[0].EventTypes).To(ConsistOf("Deposited"))
	})
})
