package domain

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// MediaType enumerates the kinds of media attached to a message.
type MediaType string

const (
	MediaNone     MediaType = "none"
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Nullable returns nil for MediaNone and the string value otherwise.
func (t MediaType) Nullable() any {
	if t == "" || t == MediaNone {
		return nil
	}
	return string(t)
}

// HasMedia reports whether the type refers to downloadable media.
func (t MediaType) HasMedia() bool {
	return t != "" && t != MediaNone
}

// MarshalJSON writes MediaNone as null.
func (t MediaType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Nullable())
}

// UnmarshalJSON reads null as MediaNone.
func (t *MediaType) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || *raw == "" {
		*t = MediaNone
		return nil
	}
	*t = MediaType(*raw)
	return nil
}

// MediaAttribute is the closed set of media shapes a post can carry.
// The unexported marker keeps implementations inside this package.
type MediaAttribute interface {
	mediaAttribute()
}

// PhotoMedia is a compressed photo.
type PhotoMedia struct {
	URL string
}

// DocumentMedia is any file attachment; FileName may be empty.
type DocumentMedia struct {
	FileName string
	MimeType string
	URL      string
}

// OtherMedia covers attachments that are not downloadable (web previews, polls, stickers).
type OtherMedia struct {
	Kind string
}

func (PhotoMedia) mediaAttribute()    {}
func (DocumentMedia) mediaAttribute() {}
func (OtherMedia) mediaAttribute()    {}

var (
	videoExtensions = []string{".mp4", ".mkv"}
	audioExtensions = []string{".mp3", ".wav"}
)

// ClassifyMedia maps a media attribute to its MediaType.
func ClassifyMedia(media MediaAttribute) MediaType {
	switch m := media.(type) {
	case nil:
		return MediaNone
	case PhotoMedia:
		return MediaPhoto
	case DocumentMedia:
		return classifyDocument(m.FileName)
	case OtherMedia:
		return MediaNone
	default:
		return MediaNone
	}
}

func classifyDocument(fileName string) MediaType {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return MediaDocument
	}
	for _, candidate := range videoExtensions {
		if ext == candidate {
			return MediaVideo
		}
	}
	for _, candidate := range audioExtensions {
		if ext == candidate {
			return MediaAudio
		}
	}
	return MediaDocument
}
