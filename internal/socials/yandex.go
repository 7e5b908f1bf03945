package socials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/yandex"
)

const yandexUserInfoURL = "https://login.yandex.ru/info?format=json"

type YandexProvider struct {
	conf *oauth2.Config
}

func NewYandexProvider(clientID, clientSecret, redirectURL string) *YandexProvider {
	return &YandexProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     yandex.Endpoint,
			RedirectURL:  redirectURL,
		},
	}
}

func (p *YandexProvider) Name() string { return ProviderYandex }

func (p *YandexProvider) AuthorizationURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *YandexProvider) Identity(ctx context.Context, code string) (Identity, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: yandex code exchange: %w", ErrProviderDenied, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, yandexUserInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build yandex userinfo request: %w", err)
	}
	// Yandex expects the OAuth scheme, not Bearer.
	req.Header.Set("Authorization", "OAuth "+tok.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch yandex userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: yandex userinfo status %d", ErrProviderDenied, resp.StatusCode)
	}

	var info struct {
		ID           string `json:"id"`
		DefaultEmail string `json:"default_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("decode yandex userinfo: %w", err)
	}
	if info.ID == "" || info.DefaultEmail == "" {
		return Identity{}, fmt.Errorf("%w: yandex userinfo missing id or email", ErrProviderDenied)
	}

	return Identity{IDSocial: info.ID, Login: info.DefaultEmail, Provider: ProviderYandex}, nil
}
