package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEndpoint(t *testing.T) {
	t.Parallel()

	endpoint := DefaultEndpoint()
	assert.Equal(t, "login.microsoftonline.com", endpoint.Host)
	assert.Equal(t, 443, endpoint.Port)
	assert.True(t, endpoint.Secured)
	assert.NoError(t, endpoint.Validate())
}

func TestEndpoint_TokenURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint Endpoint
		tenant   string
		want     string
	}{
		{
			name:     "default endpoint",
			endpoint: DefaultEndpoint(),
			tenant:   "my-tenant",
			want:     "https://login.microsoftonline.com:443/my-tenant/oauth2/v2.0/token",
		},
		{
			name:     "custom port",
			endpoint: Endpoint{Host: "login.example.net", Port: 8443, Secured: true},
			tenant:   "7f2d4cc7",
			want:     "https://login.example.net:8443/7f2d4cc7/oauth2/v2.0/token",
		},
		{
			name:     "unsecured",
			endpoint: Endpoint{Host: "127.0.0.1", Port: 8080, Secured: false},
			tenant:   "tenant",
			want:     "http://127.0.0.1:8080/tenant/oauth2/v2.0/token",
		},
		{
			name:     "tenant is path escaped",
			endpoint: Endpoint{Host: "localhost", Port: 443, Secured: true},
			tenant:   "bad/tenant",
			want:     "https://localhost:443/bad%2Ftenant/oauth2/v2.0/token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.endpoint.TokenURL(tt.tenant))
		})
	}
}

func TestEndpoint_Validate(t *testing.T) {
	t.Parallel()

	assert.Error(t, Endpoint{Host: "", Port: 443}.Validate())
	assert.Error(t, Endpoint{Host: "h", Port: 0}.Validate())
	assert.Error(t, Endpoint{Host: "h", Port: -1}.Validate())
	assert.Error(t, Endpoint{Host: "h", Port: 70000}.Validate())
	assert.NoError(t, Endpoint{Host: "h", Port: 1}.Validate())
}

func TestParseAuthority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		authority string
		want      Endpoint
		wantErr   bool
	}{
		{
			name:      "https with port",
			authority: "https://login.example.net:8443",
			want:      Endpoint{Host: "login.example.net", Port: 8443, Secured: true},
		},
		{
			name:      "https without port",
			authority: "https://login.example.net",
			want:      Endpoint{Host: "login.example.net", Port: 443, Secured: true},
		},
		{
			name:      "https trailing slash",
			authority: "https://login.example.net/",
			want:      Endpoint{Host: "login.example.net", Port: 443, Secured: true},
		},
		{
			name:      "http with port",
			authority: "http://127.0.0.1:8080",
			want:      Endpoint{Host: "127.0.0.1", Port: 8080, Secured: false},
		},
		{
			name:      "http without port",
			authority: "http://localhost",
			want:      Endpoint{Host: "localhost", Port: 80, Secured: false},
		},
		{
			name:      "bare host",
			authority: "login.example.net",
			want:      Endpoint{Host: "login.example.net", Port: 443, Secured: true},
		},
		{
			name:      "bare host with port",
			authority: "login.example.net:9443",
			want:      Endpoint{Host: "login.example.net", Port: 9443, Secured: true},
		},
		{
			name:      "surrounding whitespace",
			authority: "  https://login.example.net  ",
			want:      Endpoint{Host: "login.example.net", Port: 443, Secured: true},
		},
		{
			name:      "empty",
			authority: "",
			wantErr:   true,
		},
		{
			name:      "unsupported scheme",
			authority: "ftp://login.example.net",
			wantErr:   true,
		},
		{
			name:      "path not allowed",
			authority: "https://login.example.net/tenant",
			wantErr:   true,
		},
		{
			name:      "query not allowed",
			authority: "https://login.example.net?x=1",
			wantErr:   true,
		},
		{
			name:      "invalid port",
			authority: "https://login.example.net:notaport",
			wantErr:   true,
		},
		{
			name:      "port out of range",
			authority: "https://login.example.net:99999",
			wantErr:   true,
		},
		{
			name:      "missing host",
			authority: "https://:443",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAuthority(tt.authority)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
