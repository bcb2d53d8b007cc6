package resolve

import (
	"path/filepath"
	"strings"
)

// Kind is the processing class of a file, decided from its extension.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindOther Kind = "other"
)

var kindsByExt = map[string]Kind{
	"pdf": KindPDF,

	"png": KindImage, "jpg": KindImage, "jpeg": KindImage, "gif": KindImage,
	"webp": KindImage, "bmp": KindImage, "tif": KindImage, "tiff": KindImage, "heic": KindImage,

	"txt": KindText, "md": KindText, "csv": KindText, "json": KindText, "log": KindText,

	"mp3": KindAudio, "wav": KindAudio, "m4a": KindAudio, "ogg": KindAudio,
	"flac": KindAudio, "aac": KindAudio, "opus": KindAudio, "wma": KindAudio,

	"mp4": KindVideo, "mov": KindVideo, "avi": KindVideo, "mkv": KindVideo, "webm": KindVideo,
}

var audioMIME = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"opus": "audio/opus",
}

// Classify maps a file name to its Kind. Matching is case-insensitive.
func Classify(fileName string) Kind {
	if k, ok := kindsByExt[ext(fileName)]; ok {
		return k
	}
	return KindOther
}

// Binary reports whether files of this kind are only meaningful as raw bytes.
func (k Kind) Binary() bool {
	switch k {
	case KindPDF, KindImage, KindAudio, KindVideo:
		return true
	}
	return false
}

// MIMEFor returns the MIME type sent with binary content. Images are always
// labelled image/png and unknown audio extensions fall back to audio/mpeg.
func MIMEFor(fileName string) string {
	switch Classify(fileName) {
	case KindPDF:
		return "application/pdf"
	case KindImage:
		return "image/png"
	case KindAudio:
		if m, ok := audioMIME[ext(fileName)]; ok {
			return m
		}
		return "audio/mpeg"
	case KindText:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

func ext(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
