package provider

// AccessToken is the provider's token-endpoint response. RefreshToken is
// empty on refresh-grant responses that keep the old refresh token.
type AccessToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type User struct {
	URI         string `json:"uri"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

type Track struct {
	Id         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	DurationMs int64    `json:"duration_ms"`
	PreviewURL string   `json:"preview_url"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

type Artist struct {
	Name string `json:"name"`
}

type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type SearchResult struct {
	Tracks SearchResultTracks `json:"tracks"`
}

type SearchResultTracks struct {
	Items  []Track `json:"items"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Total  int     `json:"total"`
}

// ShortTrack is the reduced track shape sent to clients: name, artists
// and the smallest cover image.
type ShortTrack struct {
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	Artists    []string `json:"artists"`
	Cover      string   `json:"cover"`
	PreviewURL string   `json:"preview_url"`
}

func ShortenTrack(track *Track) ShortTrack {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	var cover string
	smallest := -1
	for _, img := range track.Album.Images {
		area := img.Width * img.Height
		if smallest == -1 || area < smallest {
			smallest = area
			cover = img.URL
		}
	}

	return ShortTrack{
		Name:       track.Name,
		URI:        track.URI,
		Artists:    artists,
		Cover:      cover,
		PreviewURL: track.PreviewURL,
	}
}
