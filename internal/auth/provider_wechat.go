package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// wechatSessionURL is the WeChat Mini Program code2session endpoint.
const wechatSessionURL = "https://api.weixin.qq.com/sns/jscode2session"

// WeChatProvider verifies WeChat Mini Program login codes via the
// jscode2session API.
type WeChatProvider struct {
	appid      string
	secret     string
	baseURL    string
	httpClient *http.Client
}

type wechatConfig struct {
	AppID  string `json:"appid"`
	Secret string `json:"secret"`
}

type wechatCredential struct {
	Code string `json:"code"`
}

type jsCode2SessionResponse struct {
	OpenID     string  `json:"openid"`
	SessionKey string  `json:"session_key"`
	UnionID    *string `json:"unionid"`
	ErrCode    int64   `json:"errcode"`
	ErrMsg     string  `json:"errmsg"`
}

func newWeChatProvider(config json.RawMessage, client *http.Client) (*WeChatProvider, error) {
	var cfg wechatConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("%w: Invalid WeChat config: %v", ErrValidation, err)
	}
	if cfg.AppID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("%w: Invalid WeChat config: appid and secret are required", ErrValidation)
	}
	return &WeChatProvider{
		appid:      cfg.AppID,
		secret:     cfg.Secret,
		baseURL:    wechatSessionURL,
		httpClient: client,
	}, nil
}

func (p *WeChatProvider) ProviderID() string { return "wechat" }

// Authenticate exchanges a Mini Program login code for the user's openid.
// The session_key in the response is a server-side secret for decrypting
// client payloads and is never persisted.
func (p *WeChatProvider) Authenticate(ctx context.Context, credential json.RawMessage) (*ProviderUserInfo, error) {
	var cred wechatCredential
	if err := json.Unmarshal(credential, &cred); err != nil || cred.Code == "" {
		return nil, fmt.Errorf(`%w: Invalid WeChat credential: expected {"code": "..."}`, ErrValidation)
	}

	query := url.Values{
		"appid":      {p.appid},
		"secret":     {p.secret},
		"js_code":    {cred.Code},
		"grant_type": {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building WeChat request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling WeChat API: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	var session jsCode2SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("%w: decoding WeChat response: %v", ErrProvider, err)
	}

	// WeChat reports failures in-band with errcode/errmsg.
	if session.ErrCode != 0 {
		return nil, fmt.Errorf("%w: WeChat API error %d: %s", ErrValidation, session.ErrCode, session.ErrMsg)
	}
	if session.OpenID == "" {
		return nil, fmt.Errorf("%w: WeChat API did not return openid", ErrValidation)
	}

	return &ProviderUserInfo{
		ProviderAccountID: session.OpenID,
		Metadata: map[string]any{
			"openid":  session.OpenID,
			"unionid": session.UnionID,
		},
	}, nil
}
