package types

// PreviewFrame is pushed to websocket clients while a conversion runs.
// PNG holds the rendered frame as a base64-encoded PNG.
type PreviewFrame struct {
	Type   string `json:"type"`
	Window int    `json:"window"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    string `json:"png"`
}
