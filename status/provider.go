package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minelist/status-sync/config"
)

// Provider answers the status of a host. Implementations report an offline
// host with a non-online result and reserve errors for failed lookups.
type Provider interface {
	Fetch(ctx context.Context, host string) (*Result, error)
}

// HTTPProvider talks to an mcsrvstat compatible API (`GET <base>/<host>`).
type HTTPProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewHTTPProvider(cfg *config.Status) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// upstreamStatus is the subset of the provider response we rely on.
type upstreamStatus struct {
	Online  bool            `json:"online"`
	Players *Players        `json:"players"`
	Motd    json.RawMessage `json:"motd"`
	Icon    string          `json:"icon"`
	Favicon string          `json:"favicon"`
}

// upstreamMotd is the structured form of the motd field. Both members may be
// either a list of lines or a single string.
type upstreamMotd struct {
	Clean json.RawMessage `json:"clean"`
	Raw   json.RawMessage `json:"raw"`
}

func (p *HTTPProvider) Fetch(ctx context.Context, host string) (*Result, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		p.baseURL+"/"+url.PathEscape(host),
		nil,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", p.userAgent)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status '%d': %s",
			res.StatusCode,
			string(body),
		)
	}

	return parseStatus(body)
}

func parseStatus(body []byte) (*Result, error) {
	var status upstreamStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse JSON body '%s': %w",
			string(body),
			err,
		)
	}

	if !status.Online {
		res := Offline()
		return &res, nil
	}

	res := &Result{
		Online: true,
		Motd:   parseMotd(status.Motd),
	}
	if status.Players != nil {
		res.Players = *status.Players
	}
	switch {
	case status.Icon != "":
		res.Icon = &status.Icon
	case status.Favicon != "":
		res.Icon = &status.Favicon
	}

	return res, nil
}

// parseMotd prefers the pre-cleaned lines, then the raw lines, then a plain
// string motd.
func parseMotd(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}

	var motd upstreamMotd
	if err := json.Unmarshal(raw, &motd); err == nil {
		if text, ok := joinLines(motd.Clean); ok {
			return &text
		}
		if text, ok := joinLines(motd.Raw); ok {
			return &text
		}
		return nil
	}

	if text, ok := joinLines(raw); ok {
		return &text
	}
	return nil
}

func joinLines(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		text := strings.Join(lines, "\n")
		return text, strings.TrimSpace(text) != ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, strings.TrimSpace(text) != ""
	}

	return "", false
}
