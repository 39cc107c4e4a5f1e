package outbox

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

var _ = Describe("StatsPublisher", func() {
	It("counts events by (topic, publisher, type)", func() {
		p := NewStatsPublisher("stats")
		events := []dcb.Event{{Type: "Deposited"}, {Type: "Deposited"}, {Type: "Withdrawn"}}
		Expect(p.PublishBatch(context.Background(), "ledger", events)).To(Succeed())
		Expect(p.Count("ledger", "Deposited")).To(Equal(int64(2)))
		Expect(p.Count("ledger", "Withdrawn")).To(Equal(int64(1)))
		Expect(p.Count("ledger", "Nonexistent")).To(Equal(int64(0)))
	})
})

var _ = Describe("LatchPublisher", func() {
	It("preserves delivery order on its channel", func() {
		p := NewLatchPublisher("latch", 10)
		events := []dcb.Event{{Type: "A"}, {Type: "B"}, {Type: "C"}}
		Expect(p.PublishBatch(context.Background(), "t", events)).To(Succeed())

		Expect((<-p.Events()).Type).To(Equal("A"))
		Expect((<-p.Events()).Type).To(Equal("B"))
		Expect((<-p.Events()).Type).To(Equal("C"))
	})
})

var _ = Describe("LogPublisher", func() {
	It("reports healthy", func() {
		p := NewLogPublisher("log", nil)
		Expect(p.Healthy(context.Background())).To(BeTrue())
	})
})
