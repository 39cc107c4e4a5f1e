package dcb

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Dispatcher registration", func() {
	It("rejects a second handler for the same command type", func() {
		d := NewDispatcher(&eventStore{config: DefaultEventStoreConfig()})
		noop := func(ctx context.Context, tx EventStore, cmd Command) (CommandResult, error) {
			return CommandResult{}, nil
		}
		Expect(d.Register("OpenAccount", noop)).To(Succeed())
		err := d.Register("OpenAccount", noop)
		Expect(err).To(HaveOccurred())
		Expect(IsValidationError(err)).To(BeTrue())
	})

	It("fails dispatch for an unregistered command type", func() {
		d := NewDispatcher(&eventStore{config: DefaultEventStoreConfig()})
		_, err := d.Dispatch(context.Background(), NewCommand("Nope", []byte("{}")))
		Expect(err).To(HaveOccurred())
		Expect(IsValidationError(err)).To(BeTrue())
	})
})
