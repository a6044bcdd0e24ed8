package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mutex    sync.Mutex
	messages map[string]string
}

func (m *memoryOutput) Write(id, contents string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messages[id] = contents
}

func TestDumpMessages(t *testing.T) {
	large := strings.Repeat("a", maxDumpedBody+10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-b", "2")
		w.Header().Set("x-a", "1")
		if r.URL.Path == "/large" {
			w.Write([]byte(large))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New().SetBaseURL(server.URL)
	DumpMessages(client, output)

	_, err := client.R().SetBody(`{"q":1}`).Post("/small")
	require.NoError(t, err)
	_, err = client.R().Get("/large")
	require.NoError(t, err)

	require.Len(t, output.messages, 2)
	small := output.messages["1"]
	require.Contains(t, small, "POST "+server.URL+"/small")
	require.Contains(t, small, `{"q":1}`)
	require.Contains(t, small, "---- RESPONSE ----")
	require.Less(t, strings.Index(small, "X-A: 1"), strings.Index(small, "X-B: 2"))

	require.Contains(t, output.messages["2"], "[10 bytes truncated]")
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	output.Write("1", "message")

	content, err := os.ReadFile(filepath.Join(dir, "1.txt"))
	require.NoError(t, err)
	require.Equal(t, "message", string(content))
}
