package dcb

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tag array conversion", func() {
	It("renders tags sorted as key:value pairs", func() {
		tags := []Tag{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
		Expect(TagsToArray(tags)).To(Equal([]string{"a:1", "b:2"}))
	})

	It("round-trips through ParseTagsArray", func() {
		tags := NewTags("user_id", "u1", "order_id", "o1")
		arr := TagsToArray(tags)
		parsed := ParseTagsArray(arr)
		Expect(parsed).To(ConsistOf(tags))
	})

	It("returns an empty slice for no tags", func() {
		Expect(TagsToArray(nil)).To(Equal([]string{}))
	})
})

var _ = Describe("ParseWireTag", func() {
	It("parses a well-formed key=value tag", func() {
		tag, err := ParseWireTag("user_id=u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(Tag{Key: "user_id", Value: "u1"}))
	})

	It("splits only on the first '='", func() {
		tag, err := ParseWireTag("key=a=b")
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(Tag{Key: "key", Value: "a=b"}))
	})

	It("rejects a tag with no '='", func() {
		_, err := ParseWireTag("notag")
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty key", func() {
		_, err := ParseWireTag("=value")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("QueryBuilder", func() {
	It("builds a single AND clause without Or", func() {
		q := NewQueryBuilder().WithType("Deposited").WithTag("wallet_id", "W1").Build()
		Expect(q.Items).To(HaveLen(1))
		Expect(q.Items[0].EventTypes).To(Equal([]string{"Deposited"}))
		Expect(q.Items[0].Tags).To(Equal([]Tag{{Key: "wallet_id", Value: "W1"}}))
	})

	It("combines clauses with Or into separate items", func() {
		q := NewQueryBuilder().
			WithType("Deposited").WithTag("wallet_id", "W1").
			Or().
			WithType("Withdrawn").WithTag("wallet_id", "W1").
			Build()
		Expect(q.Items).To(HaveLen(2))
		Expect(q.Items[0].EventTypes).To(Equal([]string{"Deposited"}))
		Expect(q.Items[1].EventTypes).To(Equal([]string{"Withdrawn"}))
	})

	It("returns QueryAll when nothing was added", func() {
		q := NewQueryBuilder().Build()
		Expect(q.IsEmpty()).To(BeTrue())
	})
})
