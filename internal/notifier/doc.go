// Package notifier batches emitted items and delivers them through a Sender.
//
// Items are appended to a FIFO queue. A flush loop polls the batch policy on a
// short tick and flushes when the queue exceeds the size quota or the send
// interval has elapsed, unless the queue is below the minimum batch size.
// A flush removes the oldest items (at most the size quota), resets the flush
// clock before sending and never re-queues a failed batch.
package notifier
