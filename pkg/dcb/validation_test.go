package dcb

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func toJSON(v any) []byte {
	b, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return b
}

var _ = Describe("Validation", func() {
	Describe("validateEvent", func() {
		It("accepts a well-formed event", func() {
			event := InputEvent{
				Type: "TestEvent",
				Tags: NewTags("key", "value"),
				Data: toJSON(map[string]string{"data": "test"}),
			}
			Expect(validateEvent(event, 0)).To(Succeed())
		})

		It("rejects an empty type", func() {
			event := InputEvent{Type: "", Tags: NewTags("key", "value")}
			err := validateEvent(event, 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("must not be empty"))
			Expect(IsValidationError(err)).To(BeTrue())
		})

		It("rejects a type longer than the maximum", func() {
			long := make([]byte, maxEventTypeLength+1)
			for i := range long {
				long[i] = 'a'
			}
			event := InputEvent{Type: string(long)}
			err := validateEvent(event, 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("exceeds"))
		})

		It("rejects an empty tag key", func() {
			event := InputEvent{Type: "TestEvent", Tags: []Tag{{Key: "", Value: "v"}}}
			err := validateEvent(event, 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("tag key"))
		})

		It("rejects an empty tag value", func() {
			event := InputEvent{Type: "TestEvent", Tags: []Tag{{Key: "k", Value: ""}}}
			err := validateEvent(event, 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("tag value"))
		})

		It("rejects a duplicate tag key", func() {
			event := InputEvent{Type: "TestEvent", Tags: []Tag{{Key: "k", Value: "v1"}, {Key: "k", Value: "v2"}}}
			err := validateEvent(event, 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("duplicate tag key"))
		})

		It("rejects invalid JSON data", func() {
			event := InputEvent{Type: "TestEvent", Data: []byte("{not json")}
			err := validateEvent(event, 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("valid JSON"))
		})
	})

	Describe("validateEvents", func() {
		It("rejects an empty batch", func() {
			err := validateEvents(nil, 100)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a batch exceeding the configured maximum", func() {
			events := make([]InputEvent, 3)
			for i := range events {
				events[i] = InputEvent{Type: "E"}
			}
			err := validateEvents(events, 2)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("exceeds maximum"))
		})
	})

	Describe("validateQuery", func() {
		It("accepts the empty query", func() {
			Expect(validateQuery(QueryAll())).To(Succeed())
		})

		It("rejects a query item with an empty event type", func() {
			q := NewQueryFromItems(QueryItem{EventTypes: []string{""}})
			err := validateQuery(q)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a query item with an empty tag value", func() {
			q := NewQueryFromItems(QueryItem{Tags: []Tag{{Key: "k", Value: ""}}})
			err := validateQuery(q)
			Expect(err).To(HaveOccurred())
		})
	})
})
