package s3

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/goyp/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the ListObjectsV2 and GetObject calls of a path-style
// client for a single bucket.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string]string
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	KeyCount    int      `xml:"KeyCount"`
	MaxKeys     int      `xml:"MaxKeys"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []listObject
}

type listObject struct {
	XMLName xml.Name `xml:"Contents"`
	Key     string   `xml:"Key"`
	Size    int      `xml:"Size"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket || r.Method != http.MethodGet {
		http.Error(w, "no such bucket", http.StatusNotFound)
		return
	}

	if key == "" {
		prefix := r.URL.Query().Get("prefix")
		res := listResult{Name: f.bucket, Prefix: prefix, MaxKeys: 1000}
		for k, v := range f.objects {
			if strings.HasPrefix(k, prefix) {
				res.Contents = append(res.Contents, listObject{Key: k, Size: len(v)})
			}
		}
		res.KeyCount = len(res.Contents)
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(res)
		return
	}

	body, ok := f.objects[key]
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(body))
}

func newTestSource(t *testing.T, objects map[string]string, prefix string) *Source {
	t.Helper()

	srv := httptest.NewServer(&fakeS3{bucket: "nis", objects: objects})
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), ClientConfig{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	src, err := NewSource(client, "nis", prefix)
	require.NoError(t, err)
	return src
}

func TestSourceLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("loads maps under the prefix", func(t *testing.T) {
		src := newTestSource(t, map[string]string{
			"example.com/passwd.byname": "alice:*:1000:1000:Alice:/home/alice:/bin/sh\n",
			"example.com/hosts.byname":  "# comment\nnis1 10.0.0.1 nis1\nnis2 10.0.0.2 nis2\n",
			"example.com/.keep":         "",
			"example.com/old/hosts":     "ignored 1.2.3.4\n",
			"other.org/passwd.byname":   "bob:*:1001:1001:Bob:/home/bob:/bin/sh\n",
		}, "example.com/")

		st := memory.New()
		n, err := src.Load(ctx, st, "example.com")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		value, err := st.Get(ctx, "example.com", "hosts.byname", []byte("nis2"))
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2 nis2", string(value))

		value, err = st.Get(ctx, "example.com", "passwd.byname", []byte("alice"))
		require.NoError(t, err)
		assert.Equal(t, "alice:*:1000:1000:Alice:/home/alice:/bin/sh", string(value))

		names, err := st.Maps(ctx, "example.com")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"hosts.byname", "passwd.byname"}, names)
	})

	t.Run("bad map content fails", func(t *testing.T) {
		src := newTestSource(t, map[string]string{
			"passwd.byname": "::\n",
		}, "")

		_, err := src.Load(ctx, memory.New(), "example.com")
		assert.Error(t, err)
	})

	t.Run("missing bucket fails", func(t *testing.T) {
		src := newTestSource(t, nil, "")
		src.bucket = "elsewhere"

		_, err := src.Load(ctx, memory.New(), "example.com")
		assert.Error(t, err)
	})
}

func TestNewSource(t *testing.T) {
	_, err := NewSource(nil, "nis", "")
	assert.Error(t, err)

	client, err := NewClient(context.Background(), ClientConfig{Region: "us-east-1"})
	require.NoError(t, err)
	_, err = NewSource(client, "", "")
	assert.Error(t, err)
}
