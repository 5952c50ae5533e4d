package attachment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
)

// Limits for inline attachments. Sizes are inclusive ceilings.
const (
	MaxDocuments    = 5
	MaxDocumentSize = 4.5 * 1024 * 1024 // 4718592 bytes
	MaxImages       = 20
	MaxImageSize    = 3.75 * 1024 * 1024 // 3932160 bytes
)

var documentFormats = map[string]bool{
	"txt":  true,
	"pdf":  true,
	"docx": true,
	"csv":  true,
	"json": true,
}

var imageFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// Upload is a file-like object handed over by a presentation layer.
// Content may be nil when Size alone is enough to reject the upload.
type Upload struct {
	Name    string
	MIME    string
	Size    int64
	Content io.ReadSeeker
}

// Set is the attachments offered alongside a prompt.
type Set struct {
	Documents []Upload
	Images    []Upload
}

// Empty reports whether the set carries no files.
func (s Set) Empty() bool {
	return len(s.Documents) == 0 && len(s.Images) == 0
}

// Len returns the total number of files.
func (s Set) Len() int {
	return len(s.Documents) + len(s.Images)
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9\s\-()\[\]]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// Sanitize turns an uploaded filename into a backend-safe document name:
// the extension is dropped, disallowed characters become "_", whitespace
// runs collapse to one space and the result is trimmed.
func Sanitize(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = spaceRuns.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Normalize validates the prompt's attachments and returns the turn's
// content blocks: the prompt text first, then documents, then images.
func Normalize(prompt string, set Set) ([]chat.Block, error) {
	if len(set.Documents) > MaxDocuments {
		return nil, fault.Validation("", "Too many documents: %d (limit %d).", len(set.Documents), MaxDocuments)
	}
	if len(set.Images) > MaxImages {
		return nil, fault.Validation("", "Too many images: %d (limit %d).", len(set.Images), MaxImages)
	}

	blocks := make([]chat.Block, 0, 1+set.Len())
	blocks = append(blocks, chat.TextBlock(prompt))

	for _, doc := range set.Documents {
		block, err := normalizeDocument(doc)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	for _, img := range set.Images {
		block, err := normalizeImage(img)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func normalizeDocument(u Upload) (chat.Block, error) {
	if u.Size > MaxDocumentSize {
		return chat.Block{}, fault.Validation("", "Document '%s' exceeds 4.5MB limit.", u.Name)
	}
	format := DocumentFormat(u.Name)
	if !documentFormats[format] {
		return chat.Block{}, fault.Validation("", "Unsupported document format: %s", format)
	}
	data, err := readAll(u, MaxDocumentSize)
	if err != nil {
		return chat.Block{}, err
	}
	if int64(len(data)) > MaxDocumentSize {
		return chat.Block{}, fault.Validation("", "Document '%s' exceeds 4.5MB limit.", u.Name)
	}
	return chat.DocumentBlock(chat.Document{
		Name:   Sanitize(u.Name),
		Format: format,
		Bytes:  data,
	}), nil
}

func normalizeImage(u Upload) (chat.Block, error) {
	if u.Size > MaxImageSize {
		return chat.Block{}, fault.Validation("", "Image '%s' exceeds 3.75MB limit.", u.Name)
	}
	format := ImageFormat(u.MIME)
	if !imageFormats[format] {
		return chat.Block{}, fault.Validation("", "Unsupported image format: %s", format)
	}
	data, err := readAll(u, MaxImageSize)
	if err != nil {
		return chat.Block{}, err
	}
	if int64(len(data)) > MaxImageSize {
		return chat.Block{}, fault.Validation("", "Image '%s' exceeds 3.75MB limit.", u.Name)
	}
	return chat.ImageBlock(chat.Image{Format: format, Bytes: data}), nil
}

// DocumentFormat is the lowercase extension of name, or the whole name
// lowercased when it has no dot.
func DocumentFormat(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return strings.ToLower(name[i+1:])
	}
	return strings.ToLower(name)
}

// ImageFormat derives the image format from a declared MIME type.
func ImageFormat(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	format := strings.ToLower(strings.TrimSpace(path.Base(mime)))
	if format == "jpg" {
		format = "jpeg"
	}
	return format
}

// readAll rewinds the upload and reads it exactly once, stopping one
// byte past limit so callers can detect content larger than declared.
func readAll(u Upload, limit int64) ([]byte, error) {
	if u.Content == nil {
		return nil, fault.Validation("", "Attachment '%s' has no content.", u.Name)
	}
	if _, err := u.Content.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", u.Name, err)
	}
	data, err := io.ReadAll(io.LimitReader(u.Content, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Name, err)
	}
	if u.Size > 0 && int64(len(data)) < u.Size {
		return nil, fault.Validation("", "Attachment '%s' was truncated (%d of %d bytes).", u.Name, len(data), u.Size)
	}
	return data, nil
}

// Fingerprint identifies an attachment set by name, type, size and
// content. Two sets with the same files in any order share a fingerprint.
func Fingerprint(s Set) string {
	var entries []string
	add := func(kind string, u Upload) {
		h := sha256.New()
		if u.Content != nil {
			if _, err := u.Content.Seek(0, io.SeekStart); err == nil {
				io.Copy(h, u.Content)
				u.Content.Seek(0, io.SeekStart)
			}
		}
		entries = append(entries, fmt.Sprintf("%s|%s|%s|%d|%s", kind, u.Name, u.MIME, u.Size, hex.EncodeToString(h.Sum(nil))))
	}
	for _, d := range s.Documents {
		add("doc", d)
	}
	for _, i := range s.Images {
		add("img", i)
	}
	if len(entries) == 0 {
		return ""
	}
	sort.Strings(entries)
	sum := sha256.Sum256([]byte(strings.Join(entries, "\n")))
	return hex.EncodeToString(sum[:])
}
