package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// EncodeJobMessage is the payload handed to the worker fleet through the
// broker. It must be self-contained: workers have no access to the database.
type EncodeJobMessage struct {
	JobID        string            `json:"jobId"`
	VideoID      string            `json:"videoId"`
	Source       string            `json:"source"`
	OutputPrefix string            `json:"outputPrefix"`
	Qualities    []QualityConfig   `json:"qualities"`
	Thumbnail    *ThumbnailSpec    `json:"thumbnail,omitempty"`
	ExtractAudio bool              `json:"extractAudio,omitempty"`
	CallbackURL  string            `json:"callbackUrl"`
	Secret       string            `json:"secret"`
	Metadata     JobMessageMeta    `json:"metadata"`
}

// QualityConfig is one requested rendition with its encode parameters.
type QualityConfig struct {
	Quality      string `json:"quality"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	VideoBitrate int64  `json:"videoBitrate"`
	AudioBitrate int64  `json:"audioBitrate"`
}

// ThumbnailSpec describes the still frame the worker should extract.
type ThumbnailSpec struct {
	TimeOffset float64 `json:"timeOffset"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// JobMessageMeta carries request metadata for audit on the worker side.
type JobMessageMeta struct {
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Value implements driver.Valuer for database storage
func (m EncodeJobMessage) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *EncodeJobMessage) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// QualityConfigsFor returns the default encode parameters for the named
// qualities, in ladder order.
func QualityConfigsFor(qualities QualityList) []QualityConfig {
	var configs []QualityConfig
	for _, q := range Qualities {
		if !qualities.Contains(q) {
			continue
		}
		if cfg, ok := defaultQualityConfigs[q]; ok {
			configs = append(configs, cfg)
		}
	}
	return configs
}

var defaultQualityConfigs = map[string]QualityConfig{
	"1080p": {Quality: "1080p", Width: 1920, Height: 1080, VideoBitrate: 5000_000, AudioBitrate: 192_000},
	"720p":  {Quality: "720p", Width: 1280, Height: 720, VideoBitrate: 2800_000, AudioBitrate: 128_000},
	"480p":  {Quality: "480p", Width: 854, Height: 480, VideoBitrate: 1400_000, AudioBitrate: 128_000},
	"360p":  {Quality: "360p", Width: 640, Height: 360, VideoBitrate: 800_000, AudioBitrate: 96_000},
	"240p":  {Quality: "240p", Width: 426, Height: 240, VideoBitrate: 400_000, AudioBitrate: 64_000},
}
