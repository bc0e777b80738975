// Package harness lets tests drive and assert on the state of an AMQP broker.
//
// A Harness holds a single broker connection for its whole lifetime, and either one shared
// channel or a fresh channel per call depending on amqptest.Config.SingleChannel. Every
// operation maps onto one broker primitive (publish, declare, bind, basic.get, purge), the only
// behaviour added on top is the cleanup list: a harness only purges queues registered through
// the configuration or ScheduleCleanup.
//
// Assertions wraps the harness with testify so broker state can be checked in tests, and Suite
// embeds a testify suite which connects on suite setup and purges the registered queues before
// each test when CleanupOnSetup is set.
//
//	h, err := harness.New(ctx, cfg)
//	...
//	require.NoError(t, h.PublishToQueue(ctx, "orders", []byte(`{"id": 1}`)))
//	h.Assert(t).MessageContains("orders", `"id": 1`)
package harness
