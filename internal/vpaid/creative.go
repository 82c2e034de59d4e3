package vpaid

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CreativeData is what the host hands to Init. AdParameters carries the
// creative's JSON parameter document.
type CreativeData struct {
	AdParameters string `json:"AdParameters"`
}

// CreativeParams is the parsed parameter document
type CreativeParams struct {
	Ads      []AdItem      `json:"ads"`
	Videos   []VideoSource `json:"videos"`
	Overlays []string      `json:"overlays"`
}

// AdItem is one promoted item shown by the creative
type AdItem struct {
	ThumbnailURL string `json:"thumbnailUrl"`
	Title        string `json:"title"`
	SourceName   string `json:"sourceName"`
}

// VideoSource is a candidate media file
type VideoSource struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
}

// ParseCreativeParams parses the AdParameters document. Missing or
// malformed parameters yield a *CreativeParseError.
func ParseCreativeParams(data CreativeData) (*CreativeParams, error) {
	raw := strings.TrimSpace(data.AdParameters)
	if raw == "" {
		return nil, &CreativeParseError{Reason: "AdParameters is empty"}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var params *CreativeParams
	if err := dec.Decode(&params); err != nil {
		return nil, &CreativeParseError{Reason: "malformed JSON", Err: err}
	}
	if params == nil {
		return nil, &CreativeParseError{Reason: "AdParameters is null"}
	}
	if dec.More() {
		return nil, &CreativeParseError{Reason: "trailing data after JSON document"}
	}

	return params, nil
}

// PlayableSource returns the first video with a URL whose mimetype the
// check accepts.
func (p *CreativeParams) PlayableSource(canPlay func(mimeType string) bool) (VideoSource, bool) {
	if p == nil {
		return VideoSource{}, false
	}
	for _, v := range p.Videos {
		if v.URL == "" {
			continue
		}
		if canPlay(v.MimeType) {
			return v, true
		}
	}
	return VideoSource{}, false
}
