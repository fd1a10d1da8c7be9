// Package notifier delivers short text messages to the operator.
//
// A Service sits in front of one Sender (Telegram or the log) and applies
// a shared rate limit and retry policy. Send is synchronous and reports the
// final delivery error; executors use it so a failed delivery marks the job
// run as failed. Notify is fire-and-forget: it deduplicates, queues and lets
// a small worker pool deliver, which suits log alerts and failure notices.
package notifier
