package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions commands and events are spread over.
const ShardCount = 1024

// GetShardID calculates the deterministic shard ID for a given entity ID.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// CommandSubject returns app.command.{shard_id}.{entity_type}.{entity_id}.
func CommandSubject(entityType, entityID string) string {
	return fmt.Sprintf("app.command.%d.%s.%s", GetShardID(entityID), entityType, entityID)
}

// EventSubject returns app.event.{shard_id}.{entity_type}.{entity_id}.
func EventSubject(entityType, entityID string) string {
	return fmt.Sprintf("app.event.%d.%s.%s", GetShardID(entityID), entityType, entityID)
}
