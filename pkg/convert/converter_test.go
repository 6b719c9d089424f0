package convert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConversionService struct {
	mu       sync.Mutex
	files    map[string][]byte
	saveAs   []saveAsRequest
	failStep string
	tokens   int
}

func newFakeConversionService() *fakeConversionService {
	return &fakeConversionService{files: map[string][]byte{}}
}

func (f *fakeConversionService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/connect/token" {
		f.tokens++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"secret-token","token_type":"bearer","expires_in":3600}`))
		return
	}

	if r.Header.Get("Authorization") != "Bearer secret-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const storagePrefix = "/words/storage/file/"
	switch {
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, storagePrefix):
		if f.failStep == "upload" {
			http.Error(w, "quota exceeded", http.StatusPaymentRequired)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.files[strings.TrimPrefix(r.URL.Path, storagePrefix)] = body
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/saveAs"):
		if f.failStep == "save-as" {
			http.Error(w, "conversion failed", http.StatusInternalServerError)
			return
		}
		var req saveAsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.saveAs = append(f.saveAs, req)
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/words/"), "/saveAs")
		src, ok := f.files[r.URL.Query().Get("folder")+"/"+name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.files[req.FileName] = append([]byte("%PDF-"), src...)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, storagePrefix):
		body, ok := f.files[strings.TrimPrefix(r.URL.Path, storagePrefix)]
		if !ok || f.failStep == "download" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("docx-bytes"), 0o644))
	return path
}

func newTestCloudConverter(t *testing.T, serverURL string) *CloudConverter {
	t.Helper()
	c, err := NewCloudConverter(CloudOptions{
		BaseURL:      serverURL,
		ClientID:     "client",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCloudConverter_Convert(t *testing.T) {
	svc := newFakeConversionService()
	server := httptest.NewServer(svc)
	defer server.Close()

	c := newTestCloudConverter(t, server.URL)
	src := writeSource(t, "Certificate_Asha Rao.docx")

	dst, err := c.Convert(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(src), "Certificate_Asha Rao.pdf"), dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-docx-bytes", string(data))

	require.Len(t, svc.saveAs, 1)
	assert.Equal(t, "pdf", svc.saveAs[0].SaveFormat)
	assert.True(t, strings.HasSuffix(svc.saveAs[0].FileName, "/Certificate_Asha Rao.pdf"))
}

func TestCloudConverter_UsesDistinctFolders(t *testing.T) {
	svc := newFakeConversionService()
	server := httptest.NewServer(svc)
	defer server.Close()

	c := newTestCloudConverter(t, server.URL)
	_, err := c.Convert(context.Background(), writeSource(t, "a.docx"))
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), writeSource(t, "a.docx"))
	require.NoError(t, err)

	require.Len(t, svc.saveAs, 2)
	assert.NotEqual(t, svc.saveAs[0].FileName, svc.saveAs[1].FileName)
	assert.Equal(t, 1, svc.tokens)
}

func TestCloudConverter_StepFailures(t *testing.T) {
	for _, step := range []string{"upload", "save-as", "download"} {
		t.Run(step, func(t *testing.T) {
			svc := newFakeConversionService()
			svc.failStep = step
			server := httptest.NewServer(svc)
			defer server.Close()

			c := newTestCloudConverter(t, server.URL)
			src := writeSource(t, "doc.docx")

			_, err := c.Convert(context.Background(), src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), step+":")
			assert.NoFileExists(t, TargetPath(src))
		})
	}
}

func TestCloudConverter_TokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestCloudConverter(t, server.URL)
	_, err := c.Convert(context.Background(), writeSource(t, "doc.docx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestNewCloudConverter_Validation(t *testing.T) {
	_, err := NewCloudConverter(CloudOptions{ClientID: "a", ClientSecret: "b"}, nil)
	assert.Error(t, err)

	_, err = NewCloudConverter(CloudOptions{BaseURL: "http://localhost"}, nil)
	assert.Error(t, err)
}

func TestLocalConverter_Convert(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script converter")
	}

	script := filepath.Join(t.TempDir(), "fake-office")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
for last; do :; done
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--outdir" ]; then out="$2"; fi
  shift
done
base=$(basename "$last")
printf '%%PDF-1.4' > "$out/${base%.*}.pdf"
`), 0o755))

	c := NewLocalConverter(LocalOptions{Binary: script}, zap.NewNop())
	src := writeSource(t, "Certificate_Asha Rao.docx")

	dst, err := c.Convert(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, TargetPath(src), dst)
	assert.FileExists(t, dst)
}

func TestLocalConverter_Failures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script converter")
	}

	silent := filepath.Join(t.TempDir(), "silent-office")
	require.NoError(t, os.WriteFile(silent, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	_, err := NewLocalConverter(LocalOptions{Binary: silent}, nil).Convert(context.Background(), writeSource(t, "doc.docx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")

	_, err = NewLocalConverter(LocalOptions{Binary: filepath.Join(t.TempDir(), "missing")}, nil).Convert(context.Background(), writeSource(t, "doc.docx"))
	assert.Error(t, err)

	_, err = NewLocalConverter(LocalOptions{Binary: silent}, nil).Convert(context.Background(), filepath.Join(t.TempDir(), "absent.docx"))
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	c, err := New(Options{Strategy: "none"}, zap.NewNop())
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), "x.docx")
	assert.ErrorIs(t, err, ErrConversionDisabled)

	c, err = New(Options{Strategy: "LOCAL"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalConverter{}, c)

	_, err = New(Options{Strategy: "fax"}, zap.NewNop())
	assert.Error(t, err)
}

func TestTargetPath(t *testing.T) {
	assert.Equal(t, "/tmp/x/Certificate_A B.pdf", TargetPath("/tmp/x/Certificate_A B.docx"))
	assert.Equal(t, "noext.pdf", TargetPath("noext"))
}
