package channel

import (
	"path/filepath"
	"strings"
)

// InferAttachmentType infers a canonical attachment type from the
// current type, MIME, and file name.
func InferAttachmentType(currentType AttachmentType, mime, name string) AttachmentType {
	switch strings.ToLower(strings.TrimSpace(string(currentType))) {
	case string(AttachmentImage):
		return AttachmentImage
	case string(AttachmentAudio):
		return AttachmentAudio
	case string(AttachmentVideo):
		return AttachmentVideo
	default:
		// unknown or generic file: infer from mime/name below
	}

	normalizedMime := NormalizeMime(mime)
	switch {
	case strings.HasPrefix(normalizedMime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(normalizedMime, "audio/"):
		return AttachmentAudio
	case strings.HasPrefix(normalizedMime, "video/"):
		return AttachmentVideo
	}

	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch ext {
	case ".gif", ".jpg", ".jpeg", ".png", ".webp", ".bmp", ".heic", ".heif":
		return AttachmentImage
	case ".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac":
		return AttachmentAudio
	case ".mp4", ".mov", ".mkv", ".webm":
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}

// NormalizeMime lowercases a MIME type and strips parameters such as
// charset.
func NormalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// NormalizeInboundAttachment normalizes an attachment at the adapter
// boundary.
func NormalizeInboundAttachment(att Attachment) Attachment {
	att.Type = InferAttachmentType(att.Type, att.Mime, att.Name)
	att.Mime = NormalizeMime(att.Mime)
	att.URL = strings.TrimSpace(att.URL)
	att.Name = strings.TrimSpace(att.Name)
	return att
}
