package redis

import (
	"fmt"
	"strconv"

	"github.com/mcoot/tileclaim/internal/model"
)

// tileFields encodes the immutable part of a tile as HASH fields.
// Claim fields are only written by the claim script.
func tileFields(t *model.Tile) map[string]interface{} {
	fields := map[string]interface{}{
		"id":          string(t.ID),
		"index":       t.Index,
		"name":        t.PlayerName,
		"rating":      t.Rating,
		"image":       t.ImageRef,
		"nationality": t.Nationality,
	}
	if t.ClaimedBy != nil && t.ClaimedAt != nil {
		fields["claimed_by"] = string(*t.ClaimedBy)
		fields["claimed_at"] = t.ClaimedAt.UnixMilli()
	}
	return fields
}

func parseTile(fields map[string]string) (*model.Tile, error) {
	index, err := strconv.Atoi(fields["index"])
	if err != nil {
		return nil, fmt.Errorf("tile %s: parse index: %w", fields["id"], err)
	}
	rating, err := strconv.Atoi(fields["rating"])
	if err != nil {
		return nil, fmt.Errorf("tile %s: parse rating: %w", fields["id"], err)
	}

	tile := &model.Tile{
		ID:          model.TileID(fields["id"]),
		Index:       index,
		PlayerName:  fields["name"],
		Rating:      rating,
		ImageRef:    fields["image"],
		Nationality: fields["nationality"],
	}
	if owner, ok := fields["claimed_by"]; ok && owner != "" {
		at, err := parseMillis(fields["claimed_at"])
		if err != nil {
			return nil, fmt.Errorf("tile %s: parse claimed_at: %w", tile.ID, err)
		}
		id := model.ProfileID(owner)
		tile.ClaimedBy = &id
		tile.ClaimedAt = &at
	}
	return tile, nil
}

func profileFields(p *model.Profile) map[string]interface{} {
	fields := map[string]interface{}{
		"id":         string(p.ID),
		"username":   p.Username,
		"color":      p.DisplayColor,
		"score":      p.Score,
		"created_at": p.CreatedAt.UnixMilli(),
		"updated_at": p.UpdatedAt.UnixMilli(),
	}
	if p.CooldownUntil != nil {
		fields["cooldown_until"] = p.CooldownUntil.UnixMilli()
	}
	return fields
}

func parseProfile(fields map[string]string) (*model.Profile, error) {
	score, err := strconv.Atoi(fields["score"])
	if err != nil {
		return nil, fmt.Errorf("profile %s: parse score: %w", fields["id"], err)
	}
	created, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("profile %s: parse created_at: %w", fields["id"], err)
	}
	updated, err := parseMillis(fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("profile %s: parse updated_at: %w", fields["id"], err)
	}

	p := &model.Profile{
		ID:           model.ProfileID(fields["id"]),
		Username:     fields["username"],
		DisplayColor: fields["color"],
		Score:        score,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}
	if v, ok := fields["cooldown_until"]; ok && v != "" {
		until, err := parseMillis(v)
		if err != nil {
			return nil, fmt.Errorf("profile %s: parse cooldown_until: %w", p.ID, err)
		}
		p.CooldownUntil = &until
	}
	return p, nil
}

// pairsToMap converts a flat HGETALL reply from a script into a map
func pairsToMap(flat []interface{}) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		m[asString(flat[i])] = asString(flat[i+1])
	}
	return m
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}
