// Package management wraps the RabbitMQ management HTTP API for test setup and teardown:
// creating and deleting a dedicated virtual host, listing the queues of a virtual host so
// they can be scheduled for cleanup, and dropping connections.
package management
