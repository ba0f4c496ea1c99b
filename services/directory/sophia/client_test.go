package sophiadir

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marquesl99/chamada-visual/core"
	logsvc "github.com/marquesl99/chamada-visual/services/logger"
)

type fakeSophia struct {
	mux        *http.ServeMux
	authCalls  int32
	rejectNext int32 // pending 401s on /alunos

	students interface{}
}

func newFakeSophia() *fakeSophia {
	f := &fakeSophia{mux: http.NewServeMux()}
	f.mux.HandleFunc("/api/v1/Autenticacao", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["usuario"] != "escola" || creds["senha"] != "s3nha" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&f.authCalls, 1)
		_, _ = w.Write([]byte("tok-123\n"))
	})
	f.mux.HandleFunc("/api/v1/alunos", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&f.rejectNext) > 0 {
			atomic.AddInt32(&f.rejectNext, -1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("token") != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.students)
	})
	f.mux.HandleFunc("/api/v1/alunos/3/Fotos/FotosReduzida", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"foto": "cGhvdG8="})
	})
	return f
}

func setup(t *testing.T) (*Client, *fakeSophia) {
	t.Helper()
	fake := newFakeSophia()
	ts := httptest.NewServer(fake.mux)
	t.Cleanup(ts.Close)

	conf := &core.Config{
		Sophia: core.SophiaConfig{
			User:         "escola",
			Password:     "s3nha",
			Timeout:      2 * time.Second,
			PhotoTimeout: time.Second,
		},
	}
	return newClient(ts.URL, conf, logsvc.NewConsoleLoggerMock()), fake
}

func students() interface{} {
	return []map[string]interface{}{
		{"codigo": 3, "nome": "Mariana Costa", "turmas": []map[string]string{{"descricao": "AI2 A"}}},
		{"codigo": 4, "nome": "Marcos Oliveira", "turmas": []map[string]string{{"descricao": "AF9 A"}}},
		{"codigo": 0, "nome": "Sem Código"}, // skipped: no usable ID
	}
}

func TestSearchByFirstName(t *testing.T) {
	client, fake := setup(t)
	fake.students = students()

	got, err := client.SearchByFirstName(context.Background(), "mar")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].ID)
	assert.Equal(t, "Mariana Costa", got[0].FullName)
	assert.Equal(t, "AI2 A", got[0].Class)
	assert.Equal(t, "AF9 A", got[1].Class)
}

func TestTokenIsCachedAcrossSearches(t *testing.T) {
	client, fake := setup(t)
	fake.students = students()

	for i := 0; i < 3; i++ {
		_, err := client.SearchByFirstName(context.Background(), "mar")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.authCalls), "token exchanged once and reused")
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	client, fake := setup(t)
	fake.students = students()

	_, err := client.SearchByFirstName(context.Background(), "mar")
	require.NoError(t, err)

	client.mu.Lock()
	client.tokenExpiresAt = time.Now().Add(-time.Minute)
	client.mu.Unlock()

	_, err = client.SearchByFirstName(context.Background(), "mar")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.authCalls))
}

func TestUnauthorizedRetriesOnceWithFreshToken(t *testing.T) {
	client, fake := setup(t)
	fake.students = students()
	atomic.StoreInt32(&fake.rejectNext, 1)

	got, err := client.SearchByFirstName(context.Background(), "mar")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.authCalls), "401 invalidates the cached token")
}

func TestPersistentUnauthorizedFails(t *testing.T) {
	client, fake := setup(t)
	fake.students = students()
	atomic.StoreInt32(&fake.rejectNext, 2)

	_, err := client.SearchByFirstName(context.Background(), "mar")
	assert.Error(t, err)
}

func TestReducedPhoto(t *testing.T) {
	client, _ := setup(t)

	photo, err := client.ReducedPhoto(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "cGhvdG8=", photo)

	// absent photos are not an error
	photo, err = client.ReducedPhoto(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, photo)
}

func TestBadCredentials(t *testing.T) {
	fake := newFakeSophia()
	ts := httptest.NewServer(fake.mux)
	t.Cleanup(ts.Close)

	conf := &core.Config{Sophia: core.SophiaConfig{User: "escola", Password: "errada", Timeout: time.Second, PhotoTimeout: time.Second}}
	client := newClient(ts.URL, conf, logsvc.NewConsoleLoggerMock())

	_, err := client.SearchByFirstName(context.Background(), "mar")
	assert.Error(t, err)
}
