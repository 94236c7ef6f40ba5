package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
)

func TestOpenStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, config.Config{StoreDriver: config.StoreMemory}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &booking.MemoryRepository{}, store.Repo)
	assert.Nil(t, store.Pool)
	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.Migrate(ctx, zap.NewNop()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.Config{StoreDriver: "sqlite"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestOpenLocker_WithoutRedis(t *testing.T) {
	locker, rdb, err := OpenLocker(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, rdb)
	assert.IsType(t, redisclient.NopLocker{}, locker)
}

func TestOpenLocker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	locker, rdb, err := OpenLocker(config.Config{RedisAddr: mr.Addr(), LockTTL: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, rdb)
	defer rdb.Close()

	err = locker.WithSlotLock(context.Background(), "doctor:1", func(context.Context) error {
		assert.True(t, mr.Exists(redisclient.SlotKey("doctor:1")))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(redisclient.SlotKey("doctor:1")))
}

func TestOpenNotifier_FallsBackToLog(t *testing.T) {
	n := OpenNotifier(config.Config{}, zap.NewNop())
	assert.IsType(t, &notify.LogNotifier{}, n)
	assert.NoError(t, n.Close())
}

func TestOpenNotifier_Kafka(t *testing.T) {
	n := OpenNotifier(config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, zap.NewNop())
	assert.IsType(t, &notify.KafkaNotifier{}, n)
	assert.NoError(t, n.Close())
}
