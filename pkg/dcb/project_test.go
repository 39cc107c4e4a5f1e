package dcb

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CombineProjectorQueries", func() {
	It("unions distinct projector queries into one", func() {
		p1 := StateProjector{ID: "a", Query: NewQuery(NewTags("wallet_id", "W1"), "Deposited")}
		p2 := StateProjector{ID: "b", Query: NewQuery(NewTags("wallet_id", "W1"), "Withdrawn")}
		combined := CombineProjectorQueries(p1, p2)
		Expect(combined.Items).To(HaveLen(2))
	})

	It("degenerates to QueryAll if any projector wants everything", func() {
		p1 := StateProjector{ID: "a", Query: NewQuery(NewTags("k", "v"), "X")}
		p2 := StateProjector{ID: "b", Query: QueryAll()}
		combined := CombineProjectorQueries(p1, p2)
		Expect(combined.IsEmpty()).To(BeTrue())
	})
})

var _ = Describe("matches", func() {
	event := Event{Type: "Deposited", Tags: []Tag{{Key: "wallet_id", Value: "W1"}}}

	It("matches the empty query", func() {
		Expect(matches(QueryAll(), event)).To(BeTrue())
	})

	It("matches on type and required tags", func() {
		q := NewQuery(NewTags("wallet_id", "W1"), "Deposited")
		Expect(matches(q, event)).To(BeTrue())
	})

	It("rejects a mismatched type", func() {
		q := NewQuery(NewTags("wallet_id", "W1"), "Withdrawn")
		Expect(matches(q, event)).To(BeFalse())
	})

	It("rejects a missing required tag", func() {
		q := NewQuery(NewTags("wallet_id", "W2"), "Deposited")
		Expect(matches(q, event)).To(BeFalse())
	})
})

var _ = Describe("Project", func() {
	It("returns an empty result map for no projectors", func() {
		es := &eventStore{config: DefaultEventStoreConfig()}
		results, err := es.Project(nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})
