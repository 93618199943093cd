package spotify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ErrTrailingData is returned by DecodeJSON when the body holds more than one JSON value.
var ErrTrailingData = errors.New("unexpected data after JSON value")

// DecodeJSON decodes body into a generic JSON tree. Numbers are kept as
// json.Number so integer fields can be checked without float rounding.
// This is the only fallible step of normalization.
func DecodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return v, nil
}

// ParseCurrentlyPlaying converts a currently-playing payload into TrackDetails.
// Items whose type is not "track" (episodes, ads) yield a nil Item so the
// caller can fall back to play history. PlayedAt is always nil.
func ParseCurrentlyPlaying(v any) TrackDetails {
	root := object(v)

	details := TrackDetails{
		IsPlaying: boolField(root, "is_playing"),
	}

	if item := object(root["item"]); stringField(item, "type") == "track" {
		track := ParseTrack(item)
		details.Item = &track
	}

	return details
}

// ParseRecentlyPlayed converts a recently-played payload into TrackDetails
// using only the first history entry. History is never "playing".
func ParseRecentlyPlayed(v any) TrackDetails {
	items := array(object(v)["items"])
	if len(items) == 0 {
		return TrackDetails{}
	}

	entry := object(items[0])
	details := TrackDetails{
		PlayedAt: optionalString(entry, "played_at"),
	}

	if track := object(entry["track"]); track != nil {
		t := ParseTrack(track)
		details.Item = &t
	}

	return details
}

// ParseTrack builds a Track from a track object. Missing or mistyped
// fields take their zero value; it never fails.
func ParseTrack(obj map[string]any) Track {
	duration, _ := uintField(obj, "duration_ms")
	popularity, _ := uintField(obj, "popularity")

	return Track{
		ID:         stringField(obj, "id"),
		Name:       stringField(obj, "name"),
		Album:      parseAlbum(obj["album"]),
		Artists:    parseArtists(obj["artists"]),
		Explicit:   boolField(obj, "explicit"),
		PreviewURL: optionalString(obj, "preview_url"),
		DurationMs: duration,
		Popularity: uint8(popularity),
	}
}

func parseAlbum(v any) Album {
	obj := object(v)
	return Album{
		ID:      stringField(obj, "id"),
		Name:    stringField(obj, "name"),
		Artists: parseArtists(obj["artists"]),
		Images:  parseAlbumImages(obj["images"]),
	}
}

func parseArtists(v any) []Artist {
	values := array(v)
	artists := make([]Artist, 0, len(values))
	for _, value := range values {
		obj := object(value)
		artists = append(artists, Artist{
			ID:   stringField(obj, "id"),
			Name: stringField(obj, "name"),
		})
	}
	return artists
}

func parseAlbumImages(v any) []AlbumImage {
	values := array(v)
	images := make([]AlbumImage, 0, len(values))
	for _, value := range values {
		obj := object(value)
		images = append(images, AlbumImage{
			URL:    stringField(obj, "url"),
			Height: optionalUint(obj, "height"),
			Width:  optionalUint(obj, "width"),
		})
	}
	return images
}

// object returns v as a JSON object, or nil. Indexing a nil map is safe,
// so callers can chain lookups without checks.
func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func array(v any) []any {
	a, _ := v.([]any)
	return a
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func optionalString(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func boolField(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

// uintField reports obj[key] as a non-negative integer. Fractions,
// negatives and non-numbers are rejected.
func uintField(obj map[string]any, key string) (uint64, bool) {
	switch n := obj[key].(type) {
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return u, true
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= 1<<64 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func optionalUint(obj map[string]any, key string) *uint {
	n, ok := uintField(obj, key)
	if !ok || n > math.MaxUint {
		return nil
	}
	u := uint(n)
	return &u
}
