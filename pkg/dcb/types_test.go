package dcb

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Cursor ordering", func() {
	It("orders ZeroCursor before any appended event", func() {
		Expect(ZeroCursor.Before(Cursor{TransactionID: 1, Position: 1})).To(BeTrue())
	})

	It("orders by transaction id first", func() {
		a := Cursor{TransactionID: 1, Position: 100}
		b := Cursor{TransactionID: 2, Position: 1}
		Expect(a.Before(b)).To(BeTrue())
	})

	It("orders by position within the same transaction", func() {
		a := Cursor{TransactionID: 5, Position: 1}
		b := Cursor{TransactionID: 5, Position: 2}
		Expect(a.Before(b)).To(BeTrue())
		Expect(b.Before(a)).To(BeFalse())
	})

	It("LessOrEqual is reflexive", func() {
		c := Cursor{TransactionID: 5, Position: 2}
		Expect(c.LessOrEqual(c)).To(BeTrue())
	})
})

var _ = Describe("NewTags", func() {
	It("pairs alternating key/value arguments", func() {
		tags := NewTags("a", "1", "b", "2")
		Expect(tags).To(Equal([]Tag{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}))
	})

	It("panics on an odd argument count", func() {
		Expect(func() { NewTags("a") }).To(Panic())
	})
})

var _ = Describe("Query", func() {
	It("treats an empty query as matching everything", func() {
		Expect(QueryAll().IsEmpty()).To(BeTrue())
	})

	It("NewQuery builds a single-item query", func() {
		q := NewQuery(NewTags("k", "v"), "TypeA", "TypeB")
		Expect(q.Items).To(HaveLen(1))
		Expect(q.Items[0].EventTypes).To(Equal([]string{"TypeA", "TypeB"}))
	})
})

var _ = Describe("AppendCondition", func() {
	It("WithIdempotency attaches a clause without mutating the receiver's base fields", func() {
		base := NewAppendCondition(QueryAll(), ZeroCursor)
		withIdem := base.WithIdempotency([]string{"Created"}, NewTags("id", "1"))
		Expect(base.Idempotency).To(BeNil())
		Expect(withIdem.Idempotency).NotTo(BeNil())
		Expect(withIdem.Idempotency.EventTypes).To(Equal([]string{"Created"}))
	})
})
