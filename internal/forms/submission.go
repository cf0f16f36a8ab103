package forms

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/sl-c19-memorial/memorial-web/internal/platform/textutil"
)

const maxMultipartMemory = 32 << 20

// ErrParse is wrapped by every body parsing failure.
var ErrParse = errors.New("forms: unable to parse request body")

// File is one uploaded file held in memory for the duration of the request.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission is the parsed form: last value wins for repeated fields.
type Submission struct {
	Fields map[string]string
	Files  map[string][]File
}

// FileFields returns the file field names in sorted order.
func (s Submission) FileFields() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse reads a multipart or urlencoded body no larger than maxBytes.
func Parse(w http.ResponseWriter, r *http.Request, maxBytes int64) (Submission, error) {
	if r.Body == nil {
		return Submission{}, fmt.Errorf("%w: empty body", ErrParse)
	}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	sub := Submission{
		Fields: map[string]string{},
		Files:  map[string][]File{},
	}

	switch mediaType {
	case "multipart/form-data":
		memory := int64(maxMultipartMemory)
		if maxBytes > 0 && maxBytes < memory {
			memory = maxBytes
		}
		if err := r.ParseMultipartForm(memory); err != nil {
			return Submission{}, fmt.Errorf("%w: %w", ErrParse, err)
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()
		sub.Fields = textutil.LastValues(r.MultipartForm.Value)
		for field, headers := range r.MultipartForm.File {
			for _, header := range headers {
				if header.Size == 0 && strings.TrimSpace(header.Filename) == "" {
					continue
				}
				f, err := header.Open()
				if err != nil {
					return Submission{}, fmt.Errorf("%w: open %s: %w", ErrParse, field, err)
				}
				data, err := io.ReadAll(f)
				_ = f.Close()
				if err != nil {
					return Submission{}, fmt.Errorf("%w: read %s: %w", ErrParse, field, err)
				}
				if len(data) == 0 {
					continue
				}
				sub.Files[field] = append(sub.Files[field], File{
					Name:        header.Filename,
					ContentType: header.Header.Get("Content-Type"),
					Data:        data,
				})
			}
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return Submission{}, fmt.Errorf("%w: %w", ErrParse, err)
		}
		sub.Fields = textutil.LastValues(r.PostForm)
	default:
		return Submission{}, fmt.Errorf("%w: unsupported content type %q", ErrParse, mediaType)
	}
	if sub.Fields == nil {
		sub.Fields = map[string]string{}
	}
	return sub, nil
}
