package processor

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("backoffDelay", func() {
	cfg := Config{
		PollingInterval:   1 * time.Second,
		BackoffThreshold:  10,
		BackoffMultiplier: 2,
		MaxBackoff:        60 * time.Second,
	}
	s := &Scheduler{config: cfg}

	It("stays at the polling interval below the backoff threshold", func() {
		Expect(s.backoffDelay(0)).To(Equal(1 * time.Second))
		Expect(s.backoffDelay(9)).To(Equal(1 * time.Second))
	})

	It("grows exponentially once the threshold is crossed", func() {
		Expect(s.backoffDelay(10)).To(Equal(1 * time.Second))
		Expect(s.backoffDelay(11)).To(Equal(2 * time.Second))
		Expect(s.backoffDelay(12)).To(Equal(4 * time.Second))
	})

	It("caps at maxBackoffSeconds", func() {
		Expect(s.backoffDelay(30)).To(Equal(60 * time.Second))
	})
})

var _ = Describe("isSchemaMissing", func() {
	It("detects a plain 'does not exist' error", func() {
		Expect(isSchemaMissing(errRelationMissing{})).To(BeTrue())
	})
})

type errRelationMissing struct{}

func (errRelationMissing) Error() string { return `relation "events" does not exist` }
