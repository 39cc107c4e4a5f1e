package outbox

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

var _ = Describe("Topic.Matches", func() {
	event := dcb.Event{Type: "Deposited", Tags: []dcb.Tag{{Key: "wallet_id", Value: "W1"}, {Key: "currency", Value: "USD"}}}

	It("matches every event with no clauses", func() {
		Expect(NewTopic("all").Matches(event)).To(BeTrue())
	})

	It("requires every listed key regardless of value", func() {
		topic := NewTopic("wallets").WithRequired("wallet_id")
		Expect(topic.Matches(event)).To(BeTrue())
		Expect(NewTopic("missing").WithRequired("account_id").Matches(event)).To(BeFalse())
	})

	It("matches anyOf when at least one exact tag is present", func() {
		topic := NewTopic("usd-or-eur").WithAnyOf(dcb.NewTag("currency", "USD"), dcb.NewTag("currency", "EUR"))
		Expect(topic.Matches(event)).To(BeTrue())
		Expect(NewTopic("gbp").WithAnyOf(dcb.NewTag("currency", "GBP")).Matches(event)).To(BeFalse())
	})

	It("requires every exact tag to match", func() {
		topic := NewTopic("usd-wallets").WithExact(dcb.NewTag("wallet_id", "W1"), dcb.NewTag("currency", "USD"))
		Expect(topic.Matches(event)).To(BeTrue())
		Expect(NewTopic("eur-wallets").WithExact(dcb.NewTag("currency", "EUR")).Matches(event)).To(BeFalse())
	})

	It("requires all three clause kinds to hold simultaneously", func() {
		topic := NewTopic("combo").
			WithRequired("wallet_id").
			WithAnyOf(dcb.NewTag("currency", "USD")).
			WithExact(dcb.NewTag("currency", "USD"))
		Expect(topic.Matches(event)).To(BeTrue())
	})
})

var _ = Describe("Router", func() {
	event := dcb.Event{Type: "Deposited", Tags: []dcb.Tag{{Key: "wallet_id", Value: "W1"}}}

	It("fans an event out to every topic it matches", func() {
		r := NewRouter(
			NewTopic("a").WithRequired("wallet_id"),
			NewTopic("b").WithRequired("wallet_id"),
			NewTopic("c").WithRequired("account_id"),
		)
		Expect(r.Route(event)).To(ConsistOf("a", "b"))
	})

	It("silently ignores an event matching no topic", func() {
		r := NewRouter(NewTopic("c").WithRequired("account_id"))
		Expect(r.Route(event)).To(BeEmpty())
	})
})
