package testutil

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// FakeS3 is a minimal in-memory S3-compatible server covering the object
// operations the storage gateway uses: PutObject, GetObject, HeadObject,
// DeleteObject and ListObjectsV2. Point the gateway at URL() with path-style
// addressing.
type FakeS3 struct {
	server  *httptest.Server
	mu      sync.RWMutex
	objects map[string]fakeS3Object // keyed bucket + "/" + key
}

type fakeS3Object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewFakeS3 creates an empty fake.
func NewFakeS3() *FakeS3 {
	f := &FakeS3{objects: make(map[string]fakeS3Object)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the endpoint to configure as the custom S3 endpoint.
func (f *FakeS3) URL() string {
	return f.server.URL
}

// Close shuts down the fake.
func (f *FakeS3) Close() {
	f.server.Close()
}

// Object returns a stored object's bytes for assertions.
func (f *FakeS3) Object(bucket, key string) ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	obj, ok := f.objects[bucket+"/"+key]
	return obj.data, ok
}

// Len returns the number of stored objects.
func (f *FakeS3) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.objects)
}

func (f *FakeS3) handle(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitBucketKey(r.URL)

	if bucket == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if key == "" {
		// Bucket-level GET is a listing.
		if r.Method == http.MethodGet {
			f.list(w, r, bucket)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch r.Method {
	case http.MethodPut:
		f.put(w, r, bucket, key)
	case http.MethodGet:
		f.get(w, bucket, key)
	case http.MethodHead:
		f.head(w, bucket, key)
	case http.MethodDelete:
		f.delete(w, bucket, key)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeS3) put(w http.ResponseWriter, r *http.Request, bucket, key string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.objects[bucket+"/"+key] = fakeS3Object{
		data:        data,
		contentType: r.Header.Get("Content-Type"),
		modified:    time.Now().UTC(),
	}
	f.mu.Unlock()

	w.Header().Set("ETag", `"fake-etag"`)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeS3) get(w http.ResponseWriter, bucket, key string) {
	f.mu.RLock()
	obj, ok := f.objects[bucket+"/"+key]
	f.mu.RUnlock()

	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.data)
}

func (f *FakeS3) head(w http.ResponseWriter, bucket, key string) {
	f.mu.RLock()
	obj, ok := f.objects[bucket+"/"+key]
	f.mu.RUnlock()

	if !ok {
		// HEAD errors carry no body; the SDK maps the bare 404.
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func (f *FakeS3) delete(w http.ResponseWriter, bucket, key string) {
	f.mu.Lock()
	delete(f.objects, bucket+"/"+key)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

type listBucketResult struct {
	XMLName     xml.Name       `xml:"ListBucketResult"`
	Name        string         `xml:"Name"`
	Prefix      string         `xml:"Prefix"`
	KeyCount    int            `xml:"KeyCount"`
	IsTruncated bool           `xml:"IsTruncated"`
	Contents    []listS3Object `xml:"Contents"`
}

type listS3Object struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	Size         int64  `xml:"Size"`
}

func (f *FakeS3) list(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")

	f.mu.RLock()
	var keys []string
	for stored := range f.objects {
		if !strings.HasPrefix(stored, bucket+"/") {
			continue
		}
		key := strings.TrimPrefix(stored, bucket+"/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := listBucketResult{
		Name:     bucket,
		Prefix:   prefix,
		KeyCount: len(keys),
	}
	for _, key := range keys {
		obj := f.objects[bucket+"/"+key]
		result.Contents = append(result.Contents, listS3Object{
			Key:          key,
			LastModified: obj.modified.Format("2006-01-02T15:04:05.000Z"),
			Size:         int64(len(obj.data)),
		})
	}
	f.mu.RUnlock()

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(result)
}

func writeS3Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(struct {
		XMLName xml.Name `xml:"Error"`
		Code    string   `xml:"Code"`
		Message string   `xml:"Message"`
	}{Code: code, Message: message})
}

// splitBucketKey parses a path-style request URL into bucket and object key.
func splitBucketKey(u *url.URL) (string, string) {
	path := strings.TrimPrefix(u.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
