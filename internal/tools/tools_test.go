package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewMultiplyTool(), NewAddTool(), nil)
	r.Register(NewPowerTool())

	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"add", "multiply", "power"}, names)
	assert.Nil(t, r.Get("missing"))

	sub := r.Subset("power", "missing")
	assert.Len(t, sub.Tools, 1)
	assert.NotNil(t, sub.Get("power"))
}

func TestArithmeticTools(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		tool  Tool
		input string
		want  string
	}{
		{NewAddTool(), `{"a": 2, "b": 3}`, "5"},
		{NewAddTool(), `{"a": 0.1, "b": 0.2}`, "0.30000000000000004"},
		{NewMultiplyTool(), `{"a": 5, "b": 11}`, "55"},
		{NewPowerTool(), `{"a": 2, "b": 10}`, "1024"},
	}
	for _, tt := range tests {
		t.Run(tt.tool.Name()+tt.input, func(t *testing.T) {
			got, err := tt.tool.Execute(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewAddTool().Execute(ctx, `{"a": 1}`)
	assert.Error(t, err)
	_, err = NewAddTool().Execute(ctx, `not json`)
	assert.Error(t, err)
	_, err = NewPowerTool().Execute(ctx, `{"a": 10, "b": 400}`)
	assert.ErrorContains(t, err, "not a finite number")
}

func TestCountTools(t *testing.T) {
	ctx := context.Background()

	got, err := NewWordCountTool().Execute(ctx, `{"text": "  Hello   brave new\nworld "}`)
	require.NoError(t, err)
	assert.Equal(t, "4", got)

	got, err = NewLetterCountTool().Execute(ctx, `{"text": "té-st 42!"}`)
	require.NoError(t, err)
	assert.Equal(t, "4", got)
}

func TestWeatherTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/New%20York", r.URL.EscapedPath())
		assert.Equal(t, "j1", r.URL.Query().Get("format"))
		fmt.Fprint(w, `{"current_condition":[{"temp_C":"21","temp_F":"70","FeelsLikeC":"20","FeelsLikeF":"68","humidity":"40","windspeedKmph":"11","weatherDesc":[{"value":"Sunny"}]}]}`)
	}))
	defer srv.Close()

	tool := NewWeatherTool()
	tool.BaseURL = srv.URL
	got, err := tool.Execute(context.Background(), `{"location": "New York"}`)
	require.NoError(t, err)
	assert.Equal(t, "New York: Sunny, 21°C (70°F), feels like 20°C, humidity 40%, wind 11 km/h", got)

	_, err = tool.Execute(context.Background(), `{"location": " "}`)
	assert.Error(t, err)
}

func TestWeatherToolUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewWeatherTool()
	tool.BaseURL = srv.URL
	_, err := tool.Execute(context.Background(), `{"location": "Oslo"}`)
	assert.ErrorContains(t, err, "503")
}

func TestScraperTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Go Release Notes</title></head><body>
<article><h1>Go Release Notes</h1>
<p>Go 1.25 ships with a container-aware GOMAXPROCS default and a new experimental garbage collector.</p>
<p>The release also adds testing/synctest for testing concurrent code with a virtualised clock.</p>
<p>Tooling improvements include a faster go vet and new analyzers for common mistakes in programs.</p>
<script>alert("x")</script>
</article></body></html>`)
	}))
	defer srv.Close()

	got, err := NewScraperTool().Execute(context.Background(), fmt.Sprintf(`{"url": %q}`, srv.URL))
	require.NoError(t, err)
	assert.Contains(t, got, "URL: "+srv.URL)
	assert.Contains(t, got, "TITLE: Go Release Notes")
	assert.Contains(t, got, "GOMAXPROCS")
	assert.NotContains(t, got, "<p>")

	_, err = NewScraperTool().Execute(context.Background(), `{"url": "file:///etc/passwd"}`)
	assert.ErrorContains(t, err, "invalid url")
}

type fakeSearcher struct {
	answer string
	err    error
	query  string
}

func (f *fakeSearcher) Call(_ context.Context, input string) (string, error) {
	f.query = input
	return f.answer, f.err
}

func TestSearchTool(t *testing.T) {
	fake := &fakeSearcher{answer: "Title: Go\nLink: https://go.dev"}
	tool := NewSearchToolWith(fake)

	got, err := tool.Execute(context.Background(), `{"query": "golang"}`)
	require.NoError(t, err)
	assert.Equal(t, "golang", fake.query)
	assert.Contains(t, got, "https://go.dev")

	fake.answer = ""
	got, err = tool.Execute(context.Background(), `{"query": "nothing"}`)
	require.NoError(t, err)
	assert.Equal(t, "No results found for: nothing", got)

	fake.err = errors.New("rate limited")
	_, err = tool.Execute(context.Background(), `{"query": "golang"}`)
	assert.ErrorContains(t, err, "rate limited")

	_, err = tool.Execute(context.Background(), `{"query": ""}`)
	assert.Error(t, err)
}

func TestShellTool(t *testing.T) {
	dir := t.TempDir()
	tool := NewShellTool(dir)
	tool.Shell = "sh"

	got, err := tool.Execute(context.Background(), `{"command": "echo hello && pwd"}`)
	require.NoError(t, err)
	assert.Contains(t, got, "hello")

	got, err = tool.Execute(context.Background(), `{"command": "exit 3"}`)
	require.NoError(t, err)
	assert.Contains(t, got, "Command failed")

	got, err = tool.Execute(context.Background(), `{"command": "  "}`)
	require.NoError(t, err)
	assert.Equal(t, "Error: empty command", got)
}

func TestWorkspaceTool(t *testing.T) {
	dir := t.TempDir()
	tool := NewWorkspaceTool(dir)
	ctx := context.Background()

	_, err := tool.Execute(ctx, `{"command": "write", "filename": "scripts/sum.py", "content": "print(2+3)"}`)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "scripts", "sum.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(2+3)", string(data))

	got, err := tool.Execute(ctx, `{"command": "read", "filename": "scripts/sum.py"}`)
	require.NoError(t, err)
	assert.Equal(t, "print(2+3)", got)

	got, err = tool.Execute(ctx, `{"command": "list", "filename": "."}`)
	require.NoError(t, err)
	assert.Equal(t, "[dir] scripts\n", got)

	_, err = tool.Execute(ctx, `{"command": "read", "filename": "../../etc/passwd"}`)
	assert.ErrorContains(t, err, "unsafe path")
}
