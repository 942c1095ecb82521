// Package media stores uploaded voice notes and returns the URL clients use
// to play them back.
package media

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

// File is an upload waiting to be stored.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores a file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

var allowedTypes = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/aac":   ".aac",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"video/webm":  ".webm", // MediaRecorder in some browsers labels audio-only recordings this way
}

// Allowed reports whether contentType can be stored as a voice note.
func Allowed(contentType string) bool {
	_, ok := extension(contentType, "")
	return ok
}

func extension(contentType, name string) (string, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	ext, ok := allowedTypes[strings.ToLower(mt)]
	if !ok {
		return "", false
	}
	if e := strings.ToLower(path.Ext(name)); e != "" && len(e) <= 5 {
		for _, known := range allowedTypes {
			if e == known {
				return e, true
			}
		}
	}
	return ext, true
}

// objectKey returns a unique, time-sortable key under voice/.
func objectKey(contentType, name string) (string, error) {
	ext, ok := extension(contentType, name)
	if !ok {
		return "", ErrUnsupportedType
	}
	return "voice/" + strings.ToLower(ulid.Make().String()) + ext, nil
}
