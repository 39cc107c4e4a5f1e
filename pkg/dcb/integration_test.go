//go:build integration

package dcb

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// This suite runs the same append/query/project/command paths against a
// real Postgres container and the committed schema, rather than the
// package's in-memory fakes. Build with -tags integration; it needs Docker.

var (
	intCtx       context.Context
	intPool      *pgxpool.Pool
	intStore     EventStore
	intContainer testcontainers.Container
)

func TestDcbIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "dcb integration Suite")
}

var _ = BeforeSuite(func() {
	intCtx = context.Background()

	var err error
	intPool, intContainer, err = setupIntegrationPostgres(intCtx)
	Expect(err).NotTo(HaveOccurred())

	schemaSQL, err := os.ReadFile("../../docker-entrypoint-initdb.d/schema.sql")
	Expect(err).NotTo(HaveOccurred())
	_, err = intPool.Exec(intCtx, string(schemaSQL))
	Expect(err).NotTo(HaveOccurred())

	intStore, err = NewEventStore(intCtx, intPool)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if intPool != nil {
		intPool.Close()
	}
	if intContainer != nil {
		_ = intContainer.Terminate(intCtx)
	}
})

func setupIntegrationPostgres(ctx context.Context) (*pgxpool.Pool, testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17.5-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "dcbengine",
			"POSTGRES_USER":     "dcbengine",
			"POSTGRES_DB":       "dcbengine",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, err
	}

	dsn := fmt.Sprintf("postgres://dcbengine:dcbengine@%s:%s/dcbengine?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pool, container, nil
}

var _ = Describe("EventStore against a real database", func() {
	BeforeEach(func() {
		_, err := intPool.Exec(intCtx, "TRUNCATE TABLE events, commands RESTART IDENTITY CASCADE")
		Expect(err).NotTo(HaveOccurred())
	})

	It("appends and reads back events in commit order", func() {
		tags := NewTags("wallet_id", "w1")
		event := NewInputEvent("WalletOpened", tags, []byte(`{"wallet_id":"w1"}`))

		_, err := intStore.AppendIf(intCtx, []InputEvent{event}, AppendCondition{})
		Expect(err).NotTo(HaveOccurred())

		events, err := intStore.Query(intCtx, NewQuery(tags), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal("WalletOpened"))
	})

	It("accepts events with differing tag counts within one batch", func() {
		short := NewInputEvent("A", NewTags("k1", "v1"), []byte(`{}`))
		long := NewInputEvent("B", NewTags("k1", "v1", "k2", "v2"), []byte(`{}`))

		_, err := intStore.AppendIf(intCtx, []InputEvent{short, long}, AppendCondition{})
		Expect(err).NotTo(HaveOccurred())

		events, err := intStore.Query(intCtx, QueryAll(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
	})

	It("fences a conflicting append with ConcurrencyError", func() {
		tags := NewTags("wallet_id", "w2")
		query := NewQuery(tags, "WalletOpened")
		event := NewInputEvent("WalletOpened", tags, []byte(`{}`))

		_, err := intStore.AppendIf(intCtx, []InputEvent{event}, AppendCondition{})
		Expect(err).NotTo(HaveOccurred())

		zero := ZeroCursor
		_, err = intStore.AppendIf(intCtx, []InputEvent{event}, AppendCondition{FailIfEventsMatch: query, After: &zero})
		Expect(IsConcurrencyError(err)).To(BeTrue())
	})

	It("fences on a multi-item decision query when either OR'd item conflicts", func() {
		fromTags := NewTags("wallet_id", "from2")
		toTags := NewTags("wallet_id", "to2")
		combined := NewQueryFromItems(QueryItem{Tags: fromTags}, QueryItem{Tags: toTags})

		_, err := intStore.AppendIf(intCtx, []InputEvent{NewInputEvent("WalletOpened", toTags, []byte(`{}`))}, AppendCondition{})
		Expect(err).NotTo(HaveOccurred())
		events, err := intStore.Query(intCtx, combined, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		fenceCursor := Cursor{TransactionID: events[0].TransactionID, Position: events[0].Position}

		// An event matching only the "from2" item still fences the combined
		// query, since the items are OR'd rather than collapsed into one
		// AND-tuple across both wallets' tags.
		_, err = intStore.AppendIf(intCtx,
			[]InputEvent{NewInputEvent("WalletOpened", fromTags, []byte(`{}`))},
			AppendCondition{FailIfEventsMatch: combined, After: &fenceCursor})
		Expect(IsConcurrencyError(err)).To(BeTrue())
	})

	It("rejects a duplicate idempotency clause with DuplicateOperationError", func() {
		tags := NewTags("request_id", "r1")
		event := NewInputEvent("RequestHandled", tags, []byte(`{}`))
		condition := AppendCondition{}.WithIdempotency([]string{"RequestHandled"}, tags)

		_, err := intStore.AppendIf(intCtx, []InputEvent{event}, condition)
		Expect(err).NotTo(HaveOccurred())

		_, err = intStore.AppendIf(intCtx, []InputEvent{event}, condition)
		Expect(IsDuplicateOperationError(err)).To(BeTrue())
	})

	It("folds events through a StateProjector via Project", func() {
		tags := NewTags("wallet_id", "w3")
		events := []InputEvent{
			NewInputEvent("WalletOpened", tags, []byte(`{}`)),
			NewInputEvent("Deposited", tags, []byte(`{"amount":5}`)),
			NewInputEvent("Deposited", tags, []byte(`{"amount":7}`)),
		}
		_, err := intStore.AppendIf(intCtx, events, AppendCondition{})
		Expect(err).NotTo(HaveOccurred())

		projector := StateProjector{
			ID:           "wallet:w3",
			Query:        NewQuery(tags, "WalletOpened", "Deposited"),
			InitialState: 0,
			Transition: func(state any, e Event) any {
				if e.Type == "Deposited" {
					return state.(int) + 1
				}
				return state
			},
		}
		results, err := intStore.Project(intCtx, nil, projector)
		Expect(err).NotTo(HaveOccurred())
		Expect(results["wallet:w3"].State).To(Equal(2))
	})

	It("dispatches a command and stores its command record alongside its events", func() {
		store := intStore
		dispatcher := NewDispatcher(store)
		Expect(dispatcher.Register("Noop", func(ctx context.Context, tx EventStore, cmd Command) (CommandResult, error) {
			event := NewInputEvent("Noop", NewTags("k", "v"), []byte(`{}`))
			return CommandResult{Events: []InputEvent{event}}, nil
		})).To(Succeed())

		result, err := dispatcher.Dispatch(intCtx, NewCommand("Noop", []byte(`{}`)))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.TransactionID).NotTo(BeZero())

		var count int
		err = intPool.QueryRow(intCtx, "SELECT count(*) FROM commands WHERE transaction_id = $1", result.TransactionID).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})
})
