package catalog

// listResponse represents the catalog list/search endpoint response.
type listResponse struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []gameResult `json:"results"`
}

type gameResult struct {
	ID               int64         `json:"id"`
	Slug             string        `json:"slug"`
	Name             string        `json:"name"`
	Released         string        `json:"released"`
	BackgroundImage  *string       `json:"background_image"`
	Metacritic       int           `json:"metacritic"`
	ScreenshotsCount int           `json:"screenshots_count"`
	Genres           []namedRef    `json:"genres"`
	Platforms        []platformRef `json:"platforms"`
}

// detailResponse adds the fields only present on the game detail endpoint.
type detailResponse struct {
	gameResult
	Developers []namedRef `json:"developers"`
	Publishers []namedRef `json:"publishers"`
}

type screenshotsResponse struct {
	Results []screenshotResult `json:"results"`
}

type screenshotResult struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

type namedRef struct {
	Name string `json:"name"`
}

type platformRef struct {
	Platform namedRef `json:"platform"`
}
