package sophiadir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/marquesl99/chamada-visual/core"
	"github.com/marquesl99/chamada-visual/core/student"
)

// tokens are valid for 30 minutes server-side; renew a minute early.
const tokenTTL = 29 * time.Minute

type (
	// Client talks to the tenant-scoped SophiA web API. It caches the bearer
	// token until expiry and refreshes it once on a 401.
	Client struct {
		http         *http.Client
		baseURL      string
		user         string
		password     string
		photoTimeout time.Duration
		logger       core.Logger

		mu             sync.Mutex
		token          string
		tokenExpiresAt time.Time
	}

	apiStudent struct {
		Codigo int    `json:"codigo"`
		Nome   string `json:"nome"`
		Turmas []struct {
			Descricao string `json:"descricao"`
		} `json:"turmas"`
	}

	apiPhoto struct {
		Foto string `json:"foto"`
	}
)

var _ student.Directory = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	baseURL := fmt.Sprintf("https://%s/SophiAWebApi/%s", conf.Sophia.Hostname, conf.Sophia.Tenant)
	return newClient(baseURL, conf, logger)
}

func newClient(baseURL string, conf *core.Config, logger core.Logger) *Client {
	return &Client{
		http:         &http.Client{Timeout: conf.Sophia.Timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		user:         conf.Sophia.User,
		password:     conf.Sophia.Password,
		photoTimeout: conf.Sophia.PhotoTimeout,
		logger:       logger,
	}
}

// SearchByFirstName queries /alunos by name term. A 401 invalidates the cached
// token and the request is retried once with a fresh one.
func (c *Client) SearchByFirstName(ctx context.Context, term string) ([]student.Student, error) {
	res, err := c.get(ctx, "/api/v1/alunos?"+url.Values{"Nome": {term}}.Encode())
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("searching students: sophia responded %d", res.StatusCode)
	}

	var found []apiStudent
	if err = json.NewDecoder(res.Body).Decode(&found); err != nil {
		return nil, errors.Wrap(err, "decoding student list")
	}

	students := make([]student.Student, 0, len(found))
	for _, st := range found {
		if st.Codigo == 0 {
			continue
		}
		var class string
		if len(st.Turmas) > 0 {
			class = st.Turmas[0].Descricao
		}
		students = append(students, student.Student{
			ID:       st.Codigo,
			FullName: st.Nome,
			Class:    class,
		})
	}
	return students, nil
}

// ReducedPhoto fetches the student's reduced photo. Absent photos are not an
// error; the terminal just renders a placeholder.
func (c *Client) ReducedPhoto(ctx context.Context, id int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.photoTimeout)
	defer cancel()

	res, err := c.get(ctx, fmt.Sprintf("/api/v1/alunos/%d/Fotos/FotosReduzida", id))
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return "", nil
	}
	var photo apiPhoto
	if err = json.NewDecoder(res.Body).Decode(&photo); err != nil {
		return "", errors.Wrap(err, "decoding photo")
	}
	return photo.Foto, nil
}

// get issues an authenticated GET, refreshing the token once on a 401.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.authToken(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, errors.Wrap(err, "building sophia request")
		}
		req.Header.Set("token", token)
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "calling sophia")
		}
		if res.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_ = res.Body.Close()
			c.invalidateToken()
			continue
		}
		return res, nil
	}
}

// authToken returns the cached token, exchanging user/password for a new one
// when absent or expired. Simple check-then-refresh under a mutex; call volume
// does not warrant anything fancier.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{"usuario": c.user, "senha": c.password})
	if err != nil {
		return "", errors.Wrap(err, "encoding credentials")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/Autenticacao", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "building auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "authenticating with sophia")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return "", errors.Errorf("authenticating with sophia: responded %d", res.StatusCode)
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading auth response")
	}

	c.token = strings.TrimSpace(string(raw))
	c.tokenExpiresAt = time.Now().Add(tokenTTL)
	c.logger.Debug("obtained new sophia API token")
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
