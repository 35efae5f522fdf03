// Package statusboard publishes the live state of spigot runs to Redis so
// other processes can inspect or follow them.
//
// For each instance the board keeps three things:
//
//   - the latest event as a hash at spigot:{instance}:status
//   - a bounded history of events in a sorted set at spigot:{instance}:history,
//     scored by event time in milliseconds
//   - a Pub/Sub channel spigot:{instance}:progress_events carrying every event
//     as JSON
//
// Pub/Sub delivery is at-most-once. Subscribers that need the current value
// should read GetStatus first and then follow Subscribe.
//
// The board is advisory. The checkpoint file and the digit artifact remain the
// only sources of truth for a run; nothing here is read back by the generator.
package statusboard
