package messaging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillshelf/quillshelf/internal/config"
)

func TestNewMessageBus(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	t.Run("requires at least one broker", func(t *testing.T) {
		cfg := &config.Config{}
		bus, err := NewMessageBus(cfg, logger)
		require.Error(t, err)
		assert.Nil(t, bus)
	})

	t.Run("writers target configured topics", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Kafka.Brokers = []string{"localhost:9092"}
		cfg.Kafka.Topics.PreferenceEvents = "preference-events"
		cfg.Kafka.Topics.LibraryEvents = "library-events"

		bus, err := NewMessageBus(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "preference-events", bus.preferenceWriter.Topic)
		assert.Equal(t, "library-events", bus.libraryWriter.Topic)

		require.NoError(t, bus.Close())
	})
}
