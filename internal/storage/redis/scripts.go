package redis

import "github.com/redis/go-redis/v9"

// Script results start with a status code so domain outcomes can be told
// apart from Redis errors.
const (
	codeOK                 = "ok"
	codeProfileNotFound    = "profile_not_found"
	codeTileNotFound       = "tile_not_found"
	codeAlreadyClaimed     = "already_claimed"
	codeOnCooldown         = "on_cooldown"
	codeGenerationConflict = "generation_conflict"
	codeInvalidAssignment  = "invalid_assignment"
)

// claimScript claims a tile and updates the claimant's profile atomically.
// A successful reply carries the claimed tile as written by the script.
//
// KEYS: tile, profile, tiles set, board
// ARGV: profile id, claimed at (ms), cooldown until (ms), tile key prefix
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then return {'profile_not_found', 0, 0} end
if redis.call('EXISTS', KEYS[1]) == 0 then return {'tile_not_found', 0, 0} end

local me = ARGV[1]
local at = tonumber(ARGV[2])
local owner = redis.call('HGET', KEYS[1], 'claimed_by')
if owner == me then return {'already_claimed', 0, 0} end

local cooldown = redis.call('HGET', KEYS[2], 'cooldown_until')
if cooldown and tonumber(cooldown) > at then return {'on_cooldown', 0, 0} end
if owner then return {'already_claimed', 0, 0} end

redis.call('HSET', KEYS[1], 'claimed_by', me, 'claimed_at', ARGV[2])

local score = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[3])) do
  local vals = redis.call('HMGET', ARGV[4] .. id, 'claimed_by', 'rating')
  if vals[1] == me then score = score + tonumber(vals[2]) end
end
redis.call('HSET', KEYS[2], 'score', score, 'cooldown_until', ARGV[3], 'updated_at', ARGV[2])

local gen = redis.call('HGET', KEYS[4], 'generation') or '0'
return {'ok', score, tonumber(gen), redis.call('HGETALL', KEYS[1])}
`)

// resetScript clears every claim and reindexes the board if it is still at
// the expected generation. A successful reply carries the new generation
// followed by every tile as left by the reset.
//
// KEYS: board, tiles set
// ARGV: expected generation, reset at (ms), tile key prefix, then id/index pairs
var resetScript = redis.NewScript(`
local gen = tonumber(redis.call('HGET', KEYS[1], 'generation') or '0')
if gen ~= tonumber(ARGV[1]) then return {'generation_conflict', gen} end

local n = redis.call('SCARD', KEYS[2])
if (#ARGV - 3) / 2 ~= n then return {'invalid_assignment', gen} end

local used = {}
for i = 4, #ARGV, 2 do
  local idx = tonumber(ARGV[i + 1])
  if redis.call('SISMEMBER', KEYS[2], ARGV[i]) == 0 or idx == nil or idx < 0 or idx >= n or used[idx] then
    return {'invalid_assignment', gen}
  end
  used[idx] = true
end

for i = 4, #ARGV, 2 do
  local key = ARGV[3] .. ARGV[i]
  redis.call('HDEL', key, 'claimed_by', 'claimed_at')
  redis.call('HSET', key, 'index', ARGV[i + 1])
end

gen = gen + 1
redis.call('HSET', KEYS[1], 'generation', gen, 'reset_at', ARGV[2])

local out = {'ok', gen}
for _, id in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  table.insert(out, redis.call('HGETALL', ARGV[3] .. id))
end
return out
`)

// boardScript reads the board metadata and every tile in one atomic step.
//
// KEYS: board, tiles set
// ARGV: tile key prefix
var boardScript = redis.NewScript(`
local meta = redis.call('HMGET', KEYS[1], 'generation', 'reset_at')
local out = {meta[1] or '0', meta[2] or ''}
for _, id in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  table.insert(out, redis.call('HGETALL', ARGV[1] .. id))
end
return out
`)
