package statusboard

import "fmt"

// Key pattern: spigot:{instance}:{entity}

// StatusKey returns the hash holding the latest event.
func StatusKey(instance string) string {
	return fmt.Sprintf("spigot:%s:status", instance)
}

// HistoryKey returns the sorted set of past events.
func HistoryKey(instance string) string {
	return fmt.Sprintf("spigot:%s:history", instance)
}

// ProgressEventsChannel returns the Pub/Sub channel for live events.
func ProgressEventsChannel(instance string) string {
	return fmt.Sprintf("spigot:%s:progress_events", instance)
}
