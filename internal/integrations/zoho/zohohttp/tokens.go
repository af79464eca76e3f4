package zohohttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/cache"
)

const tokenCacheKey = "zoho:access_token"

// TokenProvider выдаёт access token по refresh token'у Zoho OAuth.
// Токен кэшируется с TTL короче реального срока жизни (обычно 60 минут),
// освежается лениво при обращении. Гонка конкурентных refresh'ей
// допустима: refresh идемпотентен, лишний запрос — это просто лишний
// запрос, поэтому без блокировок.
type TokenProvider struct {
	accountsURL  string
	clientID     string
	clientSecret string
	refreshToken string

	cache cache.BytesCache
	ttl   time.Duration

	httpc *http.Client
}

func NewTokenProvider(accountsURL, clientID, clientSecret, refreshToken string, c cache.BytesCache, ttl time.Duration) *TokenProvider {
	if accountsURL == "" {
		accountsURL = "https://accounts.zoho.com"
	}
	if ttl <= 0 {
		ttl = 48 * time.Minute
	}
	return &TokenProvider{
		accountsURL:  accountsURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		cache:        c,
		ttl:          ttl,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *TokenProvider) AccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh && p.cache != nil {
		if b, ok, err := p.cache.Get(ctx, tokenCacheKey); err == nil && ok && len(b) > 0 {
			return string(b), nil
		}
	}

	token, err := p.refresh(ctx)
	if err != nil {
		return "", err
	}

	if p.cache != nil {
		// Ошибку кэша глотаем: токен на руках, следующий вызов освежит ещё раз.
		_ = p.cache.Set(ctx, tokenCacheKey, []byte(token), p.ttl)
	}
	return token, nil
}

func (p *TokenProvider) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("refresh_token", p.refreshToken)
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do token request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("zoho token endpoint http %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("zoho token refresh failed: %s", body.Error)
	}
	return body.AccessToken, nil
}
