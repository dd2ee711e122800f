package webx

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrMalformedForm reports a form or multipart body that does not
// follow its declared framing.
var ErrMalformedForm = errors.New("webx: malformed form body")

// FormFile is one uploaded file from a multipart/form-data body.
type FormFile struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// parseURLEncoded decodes percent-escaped key=value pairs joined by
// '&'. Repeated keys accumulate in order.
func parseURLEncoded(body []byte) (url.Values, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return form, errors.Wrap(ErrMalformedForm, err.Error())
	}
	return form, nil
}

func multipartBoundary(contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.Wrap(ErrMalformedForm, err.Error())
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", errors.Wrap(ErrMalformedForm, "missing multipart boundary")
	}
	return boundary, nil
}

// parseMultipart splits a buffered multipart/form-data body on its
// --boundary markers. A part carrying a filename attribute becomes a
// FormFile; any other named part becomes a form field.
func parseMultipart(body []byte, boundary string) (url.Values, []*FormFile, error) {
	form := url.Values{}
	var files []*FormFile

	delim := []byte("--" + boundary)
	i := bytes.Index(body, delim)
	if i < 0 {
		return form, nil, errors.Wrap(ErrMalformedForm, "opening boundary not found")
	}
	rest := body[i+len(delim):]

	for {
		if bytes.HasPrefix(rest, []byte("--")) {
			// --boundary-- terminator.
			return form, files, nil
		}
		if !bytes.HasPrefix(rest, []byte("\r\n")) {
			return form, nil, errors.Wrap(ErrMalformedForm, "garbage after boundary")
		}
		rest = rest[2:]

		end := bytes.Index(rest, append([]byte("\r\n"), delim...))
		if end < 0 {
			return form, nil, errors.Wrap(ErrMalformedForm, "unterminated part")
		}
		part := rest[:end]
		rest = rest[end+2+len(delim):]

		if err := parsePart(part, form, &files); err != nil {
			return form, nil, err
		}
	}
}

func parsePart(part []byte, form url.Values, files *[]*FormFile) error {
	headerBlock := part
	var data []byte
	if i := bytes.Index(part, []byte("\r\n\r\n")); i >= 0 {
		headerBlock, data = part[:i], part[i+4:]
	} else {
		return errors.Wrap(ErrMalformedForm, "part without header terminator")
	}

	hdr := Header{}
	for _, line := range strings.Split(string(headerBlock), "\r\n") {
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return errors.Wrapf(ErrMalformedForm, "part header %q", line)
		}
		hdr.Add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	}

	_, params, err := mime.ParseMediaType(hdr.Get("Content-Disposition"))
	if err != nil {
		// Tolerate parts without a usable disposition, as the original
		// form parser does.
		return nil
	}
	name := params["name"]
	if name == "" {
		return nil
	}
	if filename, ok := params["filename"]; ok {
		*files = append(*files, &FormFile{
			FieldName:   name,
			Filename:    filename,
			ContentType: hdr.Get("Content-Type"),
			Data:        append([]byte(nil), data...),
		})
		return nil
	}
	form.Add(name, string(data))
	return nil
}
