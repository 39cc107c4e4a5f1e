package processor

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("sleepOrDone", func() {
	It("returns true after the full duration elapses", func() {
		start := time.Now()
		Expect(sleepOrDone(context.Background(), 20*time.Millisecond)).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("returns false immediately when the context is already cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		Expect(sleepOrDone(ctx, 5*time.Second)).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically("<", 1*time.Second))
	})
})

var _ = Describe("LeaderElector bookkeeping", func() {
	It("reports not leader for an unheld key", func() {
		le := NewLeaderElector("")
		Expect(le.IsLeader("some-key")).To(BeFalse())
	})
})
