package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store whose client talks to an in-process fake
// serving the subset of the S3 REST API the store touches, so driver tests
// run without network or bucket.
func NewMockForTests() *Store {
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}
}

// fakeS3 holds the object table behind the fake transport. Unlike the
// store's create-only contract, PUT overwrites, matching real S3; the
// store's Head probe provides the create-only behavior above it.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

func (o fakeObject) etag() string {
	sum := sha256.Sum256(o.data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// path-style: /<bucket>/<key...>
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.list(req.URL.Query().Get("prefix")), nil
	case req.Method == http.MethodHead:
		return f.head(key), nil
	case req.Method == http.MethodGet:
		return f.get(key), nil
	case req.Method == http.MethodPut:
		return f.put(key, req), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, http.Header{}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		obj := f.objects[k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.data), obj.etag(), obj.storedAt.Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func (f *fakeS3) head(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		// HeadObject errors carry no body; the SDK maps the bare 404.
		return respond(http.StatusNotFound, nil, http.Header{})
	}
	return respond(http.StatusOK, nil, objectHeaders(obj))
}

func (f *fakeS3) get(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		body := []byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Key>` + key + `</Key></Error>`)
		return respond(http.StatusNotFound, body, http.Header{"Content-Type": {"application/xml"}})
	}
	return respond(http.StatusOK, obj.data, objectHeaders(obj))
}

func (f *fakeS3) put(key string, req *http.Request) *http.Response {
	data, _ := io.ReadAll(req.Body)
	if decoded, ok := decodeAWSChunked(data); ok {
		data = decoded
	}
	obj := fakeObject{data: data, contentType: req.Header.Get("Content-Type"), storedAt: time.Now().UTC()}
	f.objects[key] = obj
	return respond(http.StatusOK, nil, http.Header{"ETag": {obj.etag()}})
}

func objectHeaders(obj fakeObject) http.Header {
	return http.Header{
		"Content-Length": {strconv.Itoa(len(obj.data))},
		"Content-Type":   {obj.contentType},
		"ETag":           {obj.etag()},
		"Last-Modified":  {obj.storedAt.Format(http.TimeFormat)},
	}
}

func respond(status int, body []byte, header http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

// decodeAWSChunked unwraps the aws-chunked framing the SDK applies to
// streamed uploads: repeated <hex-size>\r\n<chunk>\r\n frames ending with a
// zero-size frame. Trailing signature metadata after the final frame is
// dropped.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	var out []byte
	rest := b
	for {
		idx := bytes.Index(rest, []byte("\r\n"))
		if idx < 0 {
			return nil, false
		}
		sizeField := string(rest[:idx])
		// chunk extensions (";chunk-signature=...") follow the size
		if semi := strings.IndexByte(sizeField, ';'); semi >= 0 {
			sizeField = sizeField[:semi]
		}
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, false
		}
		rest = rest[idx+2:]
		if size == 0 {
			return out, true
		}
		if int64(len(rest)) < size {
			return nil, false
		}
		out = append(out, rest[:size]...)
		rest = rest[size:]
		rest = bytes.TrimPrefix(rest, []byte("\r\n"))
	}
}
