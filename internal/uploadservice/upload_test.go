package uploadservice

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a 1x1 transparent gif
var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func multipartFile(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	file, header, err := req.FormFile("image")
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	return file, header
}

func TestSaveImage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewUploadService(dir, 1024)
	require.NoError(t, err)

	testCases := []struct {
		name        string
		content     []byte
		expectedErr error
	}{
		{name: "gif", content: gifBytes},
		{name: "plain text", content: []byte("hello world"), expectedErr: ErrUnsupportedImage},
		{name: "too large", content: append(append([]byte{}, gifBytes...), make([]byte, 2048)...), expectedErr: ErrFileTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			file, header := multipartFile(t, "image.bin", tc.content)

			ref, err := s.SaveImage(file, header)
			assert.Equal(t, tc.expectedErr, err)

			if err == nil {
				assert.True(t, strings.HasPrefix(ref, "uploads/"))
				assert.True(t, strings.HasSuffix(ref, ".gif"))

				stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(ref, "uploads/")))
				require.NoError(t, err)
				assert.Equal(t, tc.content, stored)

				assert.NoError(t, s.Remove(ref))
				_, err = os.Stat(filepath.Join(dir, strings.TrimPrefix(ref, "uploads/")))
				assert.True(t, os.IsNotExist(err))
			}
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveIgnoresForeignReferences(t *testing.T) {
	s, err := NewUploadService(t.TempDir(), 1024)
	require.NoError(t, err)

	assert.NoError(t, s.Remove(""))
	assert.NoError(t, s.Remove("https://example.com/a.png"))
	assert.NoError(t, s.Remove("uploads/../secret"))
	assert.NoError(t, s.Remove("uploads/missing.png"))
}
