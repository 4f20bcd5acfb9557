// Package dispatch runs the consume-process-produce loop of the run manager.
//
// The dispatcher polls one message at a time and wraps its processing in two
// transactions: a Kafka transaction covering produced records and the
// consumed offset, and a database transaction on a fresh pooled connection.
//
// Per message:
//   - session.Begin
//   - acquire and ping a connection, BeginTx
//   - decode and process (events and scheduled events)
//   - produce the identified event and alerts, or the raw message to the
//     dead-letter topic
//   - tx.Commit, then session.Commit
//
// Error handling:
//   - Kafka transaction error → loop returns, process exits
//   - Database connectivity error → both transactions abort, loop returns;
//     the message is redelivered after restart
//   - Any other processing error → logged, database rolled back, offset
//     committed (the message is skipped)
//   - Undecodable or unresolvable message → dead-lettered
//   - Commit lost to a rebalance → logged, message redelivered
package dispatch
