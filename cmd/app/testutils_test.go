package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sushihentaime/blogthread/internal/blogservice"
	"github.com/sushihentaime/blogthread/internal/common"
	"github.com/sushihentaime/blogthread/internal/uploadservice"
	"github.com/sushihentaime/blogthread/internal/userservice"
)

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T, h http.Handler) *testServer {
	ts := httptest.NewServer(h)

	t.Cleanup(ts.Close)

	return &testServer{ts}
}

func readResponse(t *testing.T, res *http.Response) (int, http.Header, envelope) {
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}

	var envelope envelope
	err = json.Unmarshal(responseBody, &envelope)
	if err != nil {
		t.Fatalf("could not decode %q: %v", responseBody, err)
	}

	return res.StatusCode, res.Header, envelope
}

func newTestApplication(t *testing.T) (*application, *sql.DB) {
	db := common.TestDB("file://../../migrations", t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rabbitURI := common.TestRabbitMQ(t)
	broker, err := common.NewMessageBroker(rabbitURI)
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })

	require.NoError(t, common.SetupUserExchange(broker))
	require.NoError(t, common.SetupBlogExchange(broker))

	cfg := &Config{
		Environment:    "testing",
		Version:        "1.0.0",
		TrustedOrigins: []string{"http://localhost:3000"},
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1 << 20,
		TokenCacheTTL:  time.Minute,
	}

	uploads, err := uploadservice.NewUploadService(cfg.UploadDir, cfg.MaxUploadBytes)
	require.NoError(t, err)

	cache := common.NewCache(cfg.TokenCacheTTL, 2*cfg.TokenCacheTTL)
	userService := userservice.NewUserService(db, broker, cache, logger)

	app := &application{
		config:      cfg,
		logger:      logger,
		userService: userService,
		blogService: blogservice.NewBlogService(db, userService, uploads, broker, logger),
		uploads:     uploads,
		broker:      broker,
	}

	return app, db
}

type formFile struct {
	field   string
	name    string
	content []byte
}

func (ts *testServer) do(t *testing.T, req *http.Request, token string) (int, http.Header, envelope) {
	t.Helper()

	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	res, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}

	return readResponse(t, res)
}

func (ts *testServer) sendJSON(t *testing.T, method, path string, data any, token string) (int, http.Header, envelope) {
	t.Helper()

	jsonPayload, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(jsonPayload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	return ts.do(t, req, token)
}

func (ts *testServer) sendForm(t *testing.T, method, path string, fields map[string]string, file *formFile, token string) (int, http.Header, envelope) {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}

	if file != nil {
		fw, err := mw.CreateFormFile(file.field, file.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(file.content); err != nil {
			t.Fatal(err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return ts.do(t, req, token)
}

func (ts *testServer) get(t *testing.T, path string, token string) (int, http.Header, envelope) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}

	return ts.do(t, req, token)
}

func (ts *testServer) delete(t *testing.T, path string, token string) (int, http.Header, envelope) {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}

	return ts.do(t, req, token)
}

// registerUser signs up a user and returns its id and bearer token.
func (ts *testServer) registerUser(t *testing.T, email string) (int, string) {
	t.Helper()

	status, _, body := ts.sendForm(t, http.MethodPost, "/api/users/register", map[string]string{
		"email":    email,
		"password": "Password123",
	}, nil, "")
	require.Equal(t, http.StatusCreated, status, body.JSON())

	user := body["user"].(map[string]any)
	token := body["authentication_token"].(map[string]any)

	return int(user["id"].(float64)), token["token"].(string)
}

// createBlog creates a blog as the token's user and returns its id.
func (ts *testServer) createBlog(t *testing.T, token, title string) int {
	t.Helper()

	status, _, body := ts.sendForm(t, http.MethodPost, "/api/blogs", map[string]string{
		"title":       title,
		"description": "A description",
	}, nil, token)
	require.Equal(t, http.StatusCreated, status, body.JSON())

	return int(body["blog"].(map[string]any)["id"].(float64))
}
