package loginflow

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLoginHref(t *testing.T) {
	tests := []struct {
		name   string
		params LoginParams
		want   string
	}{
		{
			name:   "return path with query",
			params: LoginParams{ReturnTo: "/challenge/ranking?tab=weekly"},
			want:   "/login?returnTo=%2Fchallenge%2Franking%3Ftab%3Dweekly",
		},
		{
			name:   "error and provider",
			params: LoginParams{ReturnTo: "/mypage", ErrorCode: ErrBrokerFailed, Provider: "naver"},
			want:   "/login?returnTo=%2Fmypage&error=broker_failed&provider=naver",
		},
		{
			name:   "unsafe return path falls back",
			params: LoginParams{ReturnTo: "//evil.com", ErrorCode: ErrOAuthFailed},
			want:   "/login?returnTo=%2Fdashboard&error=oauth_failed",
		},
		{
			name:   "empty return path",
			params: LoginParams{},
			want:   "/login?returnTo=%2Fdashboard",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildLoginHref(tt.params))
		})
	}
}

func TestBuildLoginHrefRoundTrips(t *testing.T) {
	href := BuildLoginHref(LoginParams{ReturnTo: "/history?page=2&sort=desc", Provider: "kakao", ErrorCode: ErrMissingCode})
	u, err := url.Parse(href)
	require.NoError(t, err)
	assert.Equal(t, "/history?page=2&sort=desc", u.Query().Get("returnTo"))
	assert.Equal(t, "missing_code", u.Query().Get("error"))
	assert.Equal(t, "kakao", u.Query().Get("provider"))
}

func TestBuildCallbackURL(t *testing.T) {
	assert.Equal(t,
		"https://example.com/auth-callback?returnTo=%2Fbid_notice%2Fdetail%2F1",
		BuildCallbackURL("https://example.com", "/bid_notice/detail/1", ""))
	assert.Equal(t,
		"https://example.com/auth-callback?returnTo=%2Fdashboard&provider=google",
		BuildCallbackURL("https://example.com/", "https://evil.com", "google"))
}

func TestProviderLabel(t *testing.T) {
	assert.Equal(t, "Google", ProviderLabel("google"))
	assert.Equal(t, "Kakao", ProviderLabel("kakao"))
	assert.Equal(t, "Naver", ProviderLabel("naver"))
	assert.Equal(t, "social account", ProviderLabel("myspace"))
	assert.Equal(t, "social account", ProviderLabel(""))
}

func TestLoginErrorMessage(t *testing.T) {
	tests := []struct {
		code     string
		provider string
		want     string
		wantOK   bool
	}{
		{"", "google", "", false},
		{"oauth_failed", "google", "Google sign-in failed. Please try again.", true},
		{"missing_code", "kakao", "Kakao sign-in did not return an authorization code. Please try again.", true},
		{"broker_failed", "naver", "Naver sign-in could not be completed. Please try again.", true},
		{"broker_unavailable", "naver", "Naver sign-in is temporarily unavailable.", true},
		{"oauth_failed", "unknown", "social account sign-in failed. Please try again.", true},
		{"something_new", "google", "Sign-in failed. Please try again.", true},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.provider, func(t *testing.T) {
			got, ok := LoginErrorMessage(tt.code, tt.provider)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
