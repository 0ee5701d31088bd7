package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/tileclaim/internal/model"
)

// Key prefix for all game-related data
const keyPrefix = "tileclaim"

// tileKeyPrefix is prepended to a tile id inside Lua scripts
var tileKeyPrefix = fmt.Sprintf("%s:tile:", keyPrefix)

// tileKey returns the Redis key for a tile HASH
func tileKey(id model.TileID) string {
	return tileKeyPrefix + string(id)
}

// tilesKey returns the Redis key for the SET of all tile ids
func tilesKey() string {
	return fmt.Sprintf("%s:tiles", keyPrefix)
}

// boardKey returns the Redis key for the board metadata HASH
func boardKey() string {
	return fmt.Sprintf("%s:board", keyPrefix)
}

// profileKey returns the Redis key for a profile HASH
func profileKey(id model.ProfileID) string {
	return fmt.Sprintf("%s:profile:%s", keyPrefix, id)
}

// profilesKey returns the Redis key for the SET of all profile ids
func profilesKey() string {
	return fmt.Sprintf("%s:profiles", keyPrefix)
}

// usernameIndexKey returns the Redis key for the username -> profile_id index.
// Usernames are unique regardless of case.
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, strings.ToLower(username))
}
