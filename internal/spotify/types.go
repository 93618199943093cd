package spotify

// TrackDetails is the widget payload: the current or most recent track.
type TrackDetails struct {
	Item      *Track  `json:"item"`
	IsPlaying bool    `json:"is_playing"`
	PlayedAt  *string `json:"played_at"` // Only set for recently played entries
}

// Track contains the track fields the widget renders.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Album      Album    `json:"album"`
	Artists    []Artist `json:"artists"`
	Explicit   bool     `json:"explicit"`
	PreviewURL *string  `json:"preview_url"`
	DurationMs uint64   `json:"duration_ms"`
	Popularity uint8    `json:"popularity"`
}

// Album is the album a track belongs to.
type Album struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Artists []Artist     `json:"artists"`
	Images  []AlbumImage `json:"images"`
}

// Artist identifies a track or album artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AlbumImage is one size of album artwork.
type AlbumImage struct {
	URL    string `json:"url"`
	Height *uint  `json:"height"`
	Width  *uint  `json:"width"`
}
