package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrTelegraph wraps unsuccessful telegra.ph responses.
var ErrTelegraph = errors.New("telegraph request failed")

const telegraphTokenFile = "telegraph.json"

// telegraph publishes pages on telegra.ph. The account is created on the
// first publish and its token is persisted under the data directory.
type telegraph struct {
	http    *fetcher
	baseURL string
	author  string
	dataDir string

	mu    sync.Mutex
	token string
}

type telegraphAccount struct {
	ShortName   string `json:"short_name"`
	AuthorName  string `json:"author_name"`
	AccessToken string `json:"access_token"`
}

type telegraphPage struct {
	Path  string `json:"path"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type telegraphResponse[T any] struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result T      `json:"result"`
}

type createPageRequest struct {
	AccessToken string `json:"access_token"`
	Title       string `json:"title"`
	AuthorName  string `json:"author_name,omitempty"`
	Content     []any  `json:"content"`
}

func (t *telegraph) call(ctx context.Context, method string, payload, out any) error {
	if err := t.http.postJSON(ctx, strings.TrimRight(t.baseURL, "/")+"/"+method, nil, payload, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTelegraph, method, err)
	}
	return nil
}

// accessToken returns the cached token, loading it from disk or creating
// a new account when needed.
func (t *telegraph) accessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" {
		return t.token, nil
	}
	if acc, err := t.loadAccount(); err == nil && acc.AccessToken != "" {
		t.token = acc.AccessToken
		return t.token, nil
	}

	var resp telegraphResponse[telegraphAccount]
	err := t.call(ctx, "createAccount", map[string]string{
		"short_name":  shortName(t.author),
		"author_name": t.author,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.OK || resp.Result.AccessToken == "" {
		return "", fmt.Errorf("%w: createAccount: %s", ErrTelegraph, resp.Error)
	}
	t.token = resp.Result.AccessToken
	// A failed save only costs a new account on the next restart.
	_ = t.saveAccount(resp.Result)
	return t.token, nil
}

func (t *telegraph) publish(ctx context.Context, title, markdown string) (string, error) {
	token, err := t.accessToken(ctx)
	if err != nil {
		return "", err
	}

	content := markdownToNodes(markdown)
	if len(content) == 0 {
		content = []any{&telegraphNode{Tag: "p", Children: []any{markdown}}}
	}

	var resp telegraphResponse[telegraphPage]
	err = t.call(ctx, "createPage", createPageRequest{
		AccessToken: token,
		Title:       title,
		AuthorName:  t.author,
		Content:     content,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		if resp.Error == "ACCESS_TOKEN_INVALID" {
			t.mu.Lock()
			t.token = ""
			t.mu.Unlock()
			t.removeAccount()
		}
		return "", fmt.Errorf("%w: createPage: %s", ErrTelegraph, resp.Error)
	}
	return resp.Result.URL, nil
}

func (t *telegraph) accountPath() string {
	if t.dataDir == "" {
		return ""
	}
	return filepath.Join(t.dataDir, telegraphTokenFile)
}

func (t *telegraph) loadAccount() (telegraphAccount, error) {
	var acc telegraphAccount
	path := t.accountPath()
	if path == "" {
		return acc, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return acc, err
	}
	err = json.Unmarshal(data, &acc)
	return acc, err
}

func (t *telegraph) saveAccount(acc telegraphAccount) error {
	path := t.accountPath()
	if path == "" {
		return nil
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (t *telegraph) removeAccount() {
	if path := t.accountPath(); path != "" {
		_ = os.Remove(path)
	}
}

// shortName derives a telegra.ph short_name (1-32 chars) from the author.
func shortName(author string) string {
	s := strings.Join(strings.Fields(author), "")
	if s == "" {
		s = "tgmcp"
	}
	r := []rune(s)
	if len(r) > 32 {
		r = r[:32]
	}
	return string(r)
}
