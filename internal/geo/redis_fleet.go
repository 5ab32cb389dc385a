package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/freight-dispatch/internal/models"
)

// RedisFleet implements Fleet using Redis GEO commands, so the last-known
// fleet picture survives process restarts and is shared across instances.
type RedisFleet struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisFleet(addr, password, key string) *RedisFleet {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisFleet{client: c, key: key, ctx: context.Background()}
}

func (r *RedisFleet) Upsert(v models.Vehicle) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: v.Loc.Lng, Latitude: v.Loc.Lat, Name: v.ID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(v.ID), map[string]interface{}{
		"speed_mph": fmt.Sprintf("%f", v.SpeedMPH),
		"heading":   fmt.Sprintf("%f", v.Heading),
		"updated":   time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisFleet) Nearby(lat, lng float64, limit int) []models.Vehicle {
	// radius in miles to match the rest of the geofence math
	res, err := r.client.GeoRadius(r.ctx, r.key, lng, lat, &redis.GeoRadiusQuery{
		Radius: 500, Unit: "mi", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Vehicle, 0, len(res))
	for _, g := range res {
		v := models.Vehicle{ID: g.Name}
		v.Loc.Lat = g.Latitude
		v.Loc.Lng = g.Longitude
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			if s, ok := m["speed_mph"]; ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					v.SpeedMPH = f
				}
			}
			if s, ok := m["heading"]; ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					v.Heading = f
				}
			}
			if s, ok := m["updated"]; ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					v.Updated = t
				}
			}
		}
		out = append(out, v)
	}
	return out
}

func metaKey(id string) string { return "vehicle:meta:" + id }
