// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"

	// AttachmentScheme prefixes the generated part name of every attachment.
	AttachmentScheme = "attachment://"
	metaField        = "meta"
)

// Parameters is a job parameter mapping. Values are JSON primitives or
// containers, a Reference, or an *Attachment.
type Parameters map[string]any

// Clone returns a copy that shares no maps or slices with p.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return Parameters{}
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Parameters:
		return t.Clone()
	case map[string]any:
		return map[string]any(Parameters(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Reference is a value already known to the gate. It is sent as its endpoint
// URL instead of being uploaded again.
type Reference interface {
	Endpoint() string
}

// Attachment is a binary parameter value.
type Attachment struct {
	open func() (io.ReadCloser, error)

	once sync.Once
	data []byte
	err  error
}

// Bytes wraps an in-memory payload.
func Bytes(b []byte) *Attachment {
	return &Attachment{open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}}
}

// Reader wraps a stream. It is read fully the first time the attachment is encoded.
func Reader(r io.Reader) *Attachment {
	return &Attachment{open: func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}}
}

// File wraps a file on disk, opened lazily at encoding time.
func File(path string) *Attachment {
	return &Attachment{open: func() (io.ReadCloser, error) {
		// #nosec G304 -- path is provided by the caller
		return os.Open(filepath.Clean(path))
	}}
}

// Data returns the attachment payload, reading it on first use.
func (a *Attachment) Data() ([]byte, error) {
	a.once.Do(func() {
		rc, err := a.open()
		if err != nil {
			a.err = fmt.Errorf("open attachment: %w", err)
			return
		}
		defer func() { _ = rc.Close() }()
		a.data, a.err = io.ReadAll(rc)
	})
	return a.data, a.err
}

// MarshalJSON fails: attachments must be replaced before JSON encoding.
// Reaching it means the attachment sits in a container the encoder does not walk.
func (a *Attachment) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("%w: attachment inside an unsupported container", ErrEncoding)
}

// Resolve returns a copy of params where every Reference is replaced by its
// endpoint and every *Attachment by the value fn returns for it.
func Resolve(params Parameters, fn func(*Attachment) (any, error)) (Parameters, error) {
	out, err := resolveValue(params, fn)
	if err != nil {
		return nil, err
	}
	return out.(Parameters), nil
}

func resolveValue(v any, fn func(*Attachment) (any, error)) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *Attachment:
		return fn(t)
	case Reference:
		return t.Endpoint(), nil
	case Parameters:
		out := make(Parameters, len(t))
		for k, item := range t {
			r, err := resolveValue(item, fn)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case map[string]any:
		r, err := resolveValue(Parameters(t), fn)
		if err != nil {
			return nil, err
		}
		return map[string]any(r.(Parameters)), nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := resolveValue(item, fn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// Body is a fully buffered request body.
type Body struct {
	ContentType string
	Data        []byte
	// Attachments counts the multipart attachment parts.
	Attachments int
}

// JSONBody encodes v as an application/json body.
func JSONBody(v any) (*Body, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, encodingError("encode parameters", err)
	}
	return &Body{ContentType: contentTypeJSON, Data: data}, nil
}

type attachmentPart struct {
	id   string
	data []byte
}

// Encode serializes params for a job or collection POST. Without attachments
// the body is plain JSON. Otherwise it is a multipart form with one
// "attachment://<id>" part per attachment plus a "meta" part holding the JSON
// parameters, where each attachment is replaced by its part name.
func Encode(params Parameters) (*Body, error) {
	var parts []attachmentPart
	resolved, err := Resolve(params, func(a *Attachment) (any, error) {
		data, err := a.Data()
		if err != nil {
			return nil, err
		}
		id := uuid.NewString()
		parts = append(parts, attachmentPart{id: id, data: data})
		return AttachmentScheme + id, nil
	})
	if err != nil {
		return nil, encodingError("encode parameters", err)
	}

	meta, err := JSONBody(resolved)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return meta, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s%s"; filename="%s"`, AttachmentScheme, p.id, p.id))
		h.Set("Content-Type", contentTypeBinary)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, encodingError("encode attachment", err)
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, encodingError("encode attachment", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, metaField))
	h.Set("Content-Type", contentTypeJSON)
	w, err := mw.CreatePart(h)
	if err != nil {
		return nil, encodingError("encode meta", err)
	}
	if _, err := w.Write(meta.Data); err != nil {
		return nil, encodingError("encode meta", err)
	}
	if err := mw.Close(); err != nil {
		return nil, encodingError("encode multipart", err)
	}

	return &Body{
		ContentType: mw.FormDataContentType(),
		Data:        buf.Bytes(),
		Attachments: len(parts),
	}, nil
}
