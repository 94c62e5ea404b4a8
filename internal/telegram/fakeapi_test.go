package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harun/tagrelay/internal/config"
)

const testToken = "123456:test-token"

type apiCall struct {
	Method string
	Form   url.Values
}

// fakeAPI is a minimal Bot API server recording every call
type fakeAPI struct {
	server *httptest.Server

	mu      sync.Mutex
	calls   []apiCall
	batches [][]string

	// failIf returns a non-empty description to fail the call
	failIf func(method string, form url.Values) string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})
	failIf := f.failIf
	var batch []string
	if method == "getUpdates" && len(f.batches) > 0 {
		batch = f.batches[0]
		f.batches = f.batches[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if failIf != nil {
		if desc := failIf(method, r.PostForm); desc != "" {
			fmt.Fprintf(w, `{"ok":false,"error_code":400,"description":%q}`, desc)
			return
		}
	}

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"TagRelay","username":"tagrelay_bot"}}`)
	case "sendMessage":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":100,"date":0,"chat":{"id":%s,"type":"supergroup"}}}`, r.PostForm.Get("chat_id"))
	case "getUpdates":
		if batch == nil {
			time.Sleep(10 * time.Millisecond)
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
			return
		}
		data, _ := json.Marshal(rawList(batch))
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, data)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func rawList(items []string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out
}

func (f *fakeAPI) queueUpdates(updates ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, updates)
}

func (f *fakeAPI) setFailIf(fn func(method string, form url.Values) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIf = fn
}

// callsTo returns the recorded calls of one method
func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func newTestBot(t *testing.T, cfg *config.TelegramConfig) (*Bot, *fakeAPI) {
	t.Helper()
	fake := newFakeAPI(t)

	api, err := tgbotapi.NewBotAPIWithClient(testToken, fake.server.URL+"/bot%s/%s", fake.server.Client())
	require.NoError(t, err)

	if cfg == nil {
		cfg = &config.TelegramConfig{}
	}
	return NewWithAPI(api, cfg, zerolog.Nop()), fake
}

type fakeRecorder struct {
	mu       sync.Mutex
	updates  map[string]int
	requests map[string]int
	errors   int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{updates: map[string]int{}, requests: map[string]int{}}
}

func (r *fakeRecorder) UpdateReceived(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[kind]++
}

func (r *fakeRecorder) RequestSent(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[method]++
	if err != nil {
		r.errors++
	}
}

func (r *fakeRecorder) updateCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[kind]
}
