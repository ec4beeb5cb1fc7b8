//go:build integration

package integration_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/quake-search-service/internal/adapter/csvsource"
	"github.com/couchcryptid/quake-search-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/quake-search-service/internal/domain"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker for the duration of the test and
// returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("quake-test"))
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// loadMockData returns the records of the mock catalog with their catalog IDs.
func loadMockData(t *testing.T) ([]domain.RawQuakeRecord, []string) {
	t.Helper()
	f, err := os.Open(filepath.Join("..", "..", "data", "mock", "quakes.csv"))
	require.NoError(t, err)
	defer f.Close()

	r, err := csvsource.NewReader(f, "quakes.csv")
	require.NoError(t, err)

	var (
		records []domain.RawQuakeRecord
		ids     []string
	)
	for {
		rec, id, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, ids
		}
		require.NoError(t, err)
		records = append(records, rec)
		ids = append(ids, id)
	}
}

// openStore creates a migrated SQLite store in a temporary directory.
func openStore(ctx context.Context, t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "quakes.db"),
		sqlstore.BreakerSettings{}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}
