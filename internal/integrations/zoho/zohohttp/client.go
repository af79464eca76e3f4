package zohohttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Client ходит в Zoho CRM API v2. Каждая операция делает до двух
// попыток: вторая — с принудительным refresh'ем access token'а
// (кэшированный токен мог протухнуть раньше TTL, если его отозвали).
type Client struct {
	apiURL string
	tokens *TokenProvider
	httpc  *http.Client
}

func New(apiURL string, tokens *TokenProvider) *Client {
	if apiURL == "" {
		apiURL = "https://www.zohoapis.com"
	}
	return &Client{
		apiURL: apiURL,
		tokens: tokens,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) UpdateRecordFields(ctx context.Context, module, recordID string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"data": []any{fields}})
	if err != nil {
		return errors.Wrap(err, "marshal update payload")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.AccessToken(ctx, attempt == 1)
		if err != nil {
			lastErr = err
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			fmt.Sprintf("%s/crm/v2/%s/%s", c.apiURL, module, recordID),
			bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "new update request")
		}
		req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = errors.Wrap(err, "do update request")
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("zoho update %s/%s: http 401", module, recordID)
			continue
		}

		err = checkRecordResponse(resp, module, recordID)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) ReadRecordField(ctx context.Context, module, recordID, field string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.AccessToken(ctx, attempt == 1)
		if err != nil {
			lastErr = err
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/crm/v2/%s/%s?fields=%s", c.apiURL, module, recordID, field), nil)
		if err != nil {
			return "", errors.Wrap(err, "new read request")
		}
		req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = errors.Wrap(err, "do read request")
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("zoho read %s/%s: http 401", module, recordID)
			continue
		}
		// 204 — запись есть, но запрошенные поля пустые
		if resp.StatusCode == http.StatusNoContent {
			_ = resp.Body.Close()
			return "", nil
		}
		if resp.StatusCode/100 != 2 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("zoho read %s/%s: http %d", module, recordID, resp.StatusCode)
			continue
		}

		var body struct {
			Data []map[string]any `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "decode read response")
			continue
		}
		if len(body.Data) == 0 {
			return "", nil
		}
		if v, ok := body.Data[0][field].(string); ok {
			return v, nil
		}
		return "", nil
	}
	return "", lastErr
}

func checkRecordResponse(resp *http.Response, module, recordID string) error {
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("zoho update %s/%s: http %d: %s", module, recordID, resp.StatusCode, string(b))
	}

	var body struct {
		Data []struct {
			Code   string `json:"code"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errors.Wrap(err, "decode update response")
	}
	if len(body.Data) == 0 {
		return fmt.Errorf("zoho update %s/%s: empty data in response", module, recordID)
	}
	if body.Data[0].Code != "SUCCESS" {
		return fmt.Errorf("zoho update %s/%s: code=%s", module, recordID, body.Data[0].Code)
	}
	return nil
}
