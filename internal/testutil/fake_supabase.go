package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"
)

// FakeSupabase is a minimal in-memory Supabase storage API covering upload,
// download, list and remove. Point the storage client at URL().
type FakeSupabase struct {
	server  *httptest.Server
	mu      sync.RWMutex
	objects map[string]fakeS3Object // keyed bucket + "/" + key
}

// NewFakeSupabase creates an empty fake.
func NewFakeSupabase() *FakeSupabase {
	f := &FakeSupabase{objects: make(map[string]fakeS3Object)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the storage API root to configure as the Supabase URL.
func (f *FakeSupabase) URL() string {
	return f.server.URL
}

// Close shuts down the fake.
func (f *FakeSupabase) Close() {
	f.server.Close()
}

// Object returns a stored object's bytes for assertions.
func (f *FakeSupabase) Object(bucket, key string) ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	obj, ok := f.objects[bucket+"/"+key]
	return obj.data, ok
}

// Len returns the number of stored objects.
func (f *FakeSupabase) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.objects)
}

func (f *FakeSupabase) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	switch {
	case strings.HasPrefix(path, "object/list/"):
		f.list(w, r, strings.TrimPrefix(path, "object/list/"))
	case strings.HasPrefix(path, "object/authenticated/"):
		f.download(w, strings.TrimPrefix(path, "object/authenticated/"))
	case strings.HasPrefix(path, "object/"):
		rest := strings.TrimPrefix(path, "object/")
		switch r.Method {
		case http.MethodPost, http.MethodPut:
			f.upload(w, r, rest)
		case http.MethodGet:
			f.download(w, rest)
		case http.MethodDelete:
			f.remove(w, r, rest)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		writeSupabaseError(w, http.StatusNotFound, "not_found", "Route not found")
	}
}

func (f *FakeSupabase) upload(w http.ResponseWriter, r *http.Request, bucketAndKey string) {
	bucket, key, ok := splitObjectPath(bucketAndKey)
	if !ok {
		writeSupabaseError(w, http.StatusBadRequest, "invalid_request", "Missing object key")
		return
	}

	f.mu.RLock()
	_, exists := f.objects[bucket+"/"+key]
	f.mu.RUnlock()
	if exists && r.Method == http.MethodPost && r.Header.Get("x-upsert") != "true" {
		writeSupabaseError(w, http.StatusConflict, "Duplicate", "The resource already exists")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeSupabaseError(w, http.StatusBadRequest, "invalid_request", "Unreadable body")
		return
	}

	f.mu.Lock()
	f.objects[bucket+"/"+key] = fakeS3Object{
		data:        data,
		contentType: r.Header.Get("Content-Type"),
		modified:    time.Now().UTC(),
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"Key": bucket + "/" + key})
}

func (f *FakeSupabase) download(w http.ResponseWriter, bucketAndKey string) {
	bucket, key, ok := splitObjectPath(bucketAndKey)
	if !ok {
		writeSupabaseError(w, http.StatusBadRequest, "invalid_request", "Missing object key")
		return
	}

	f.mu.RLock()
	obj, exists := f.objects[bucket+"/"+key]
	f.mu.RUnlock()
	if !exists {
		writeSupabaseError(w, http.StatusNotFound, "not_found", "Object not found")
		return
	}

	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.data)
}

func (f *FakeSupabase) list(w http.ResponseWriter, r *http.Request, bucket string) {
	var req struct {
		Prefix string `json:"prefix"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSupabaseError(w, http.StatusBadRequest, "invalid_request", "Unreadable body")
		return
	}

	folder := strings.Trim(req.Prefix, "/")

	f.mu.RLock()
	var names []string
	entries := make(map[string]fakeS3Object)
	for stored, obj := range f.objects {
		if !strings.HasPrefix(stored, bucket+"/") {
			continue
		}
		key := strings.TrimPrefix(stored, bucket+"/")
		if folder != "" {
			if !strings.HasPrefix(key, folder+"/") {
				continue
			}
			key = strings.TrimPrefix(key, folder+"/")
		}
		// Only immediate children appear in a folder listing.
		if strings.Contains(key, "/") {
			continue
		}
		names = append(names, key)
		entries[key] = obj
	}
	f.mu.RUnlock()

	sort.Strings(names)
	if req.Limit > 0 && len(names) > req.Limit {
		names = names[:req.Limit]
	}

	out := make([]map[string]any, 0, len(names))
	for i, name := range names {
		obj := entries[name]
		out = append(out, map[string]any{
			"name":       name,
			"id":         fmt.Sprintf("fake-object-%d", i+1),
			"updated_at": obj.modified.Format(time.RFC3339),
			"created_at": obj.modified.Format(time.RFC3339),
			"metadata": map[string]any{
				"size":     len(obj.data),
				"mimetype": obj.contentType,
			},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (f *FakeSupabase) remove(w http.ResponseWriter, r *http.Request, bucket string) {
	var req struct {
		Prefixes []string `json:"prefixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSupabaseError(w, http.StatusBadRequest, "invalid_request", "Unreadable body")
		return
	}

	deleted := make([]map[string]any, 0, len(req.Prefixes))
	f.mu.Lock()
	for _, key := range req.Prefixes {
		if obj, ok := f.objects[bucket+"/"+key]; ok {
			delete(f.objects, bucket+"/"+key)
			deleted = append(deleted, map[string]any{
				"name":       key,
				"updated_at": obj.modified.Format(time.RFC3339),
			})
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(deleted)
}

// splitObjectPath parses "bucket/key/with/slashes" into bucket and key.
func splitObjectPath(path string) (bucket, key string, ok bool) {
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func writeSupabaseError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"statusCode": fmt.Sprintf("%d", status),
		"error":      code,
		"message":    message,
	})
}
