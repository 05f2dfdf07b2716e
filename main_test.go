package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cakeday/birthday"
	"cakeday/bot"
	"cakeday/dal"
	"cakeday/discordutils"
	"cakeday/logging"
)

func TestShutdownStopsStartedScheduler(t *testing.T) {
	db, err := dal.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dal.Close(db) })
	store := dal.NewStore(db)

	b, err := bot.New(bot.Config{Token: "test-token"}, store, logging.Discard())
	require.NoError(t, err)

	scheduler, err := birthday.NewScheduler(birthday.SchedulerConfig{
		Store:      store,
		Gateway:    discordutils.NewGateway(b.Session(), 5),
		ChannelID:  "chan-1",
		Logger:     logging.Discard(),
		GraceDelay: time.Hour,
	})
	require.NoError(t, err)

	// as if the Ready handler fired before Open went on to fail
	require.NoError(t, scheduler.Start(context.Background()))

	shutdown(time.Second, logging.Discard(), scheduler, nil, b)

	require.False(t, scheduler.Trigger())
	require.ErrorIs(t, scheduler.Start(context.Background()), birthday.ErrSchedulerStopped)
	require.Zero(t, scheduler.Snapshot().Passes)
}
