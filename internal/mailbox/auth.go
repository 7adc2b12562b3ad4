// internal/mailbox/auth.go
package mailbox

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rmcnulty/evergreen-cli/internal/config"
)

const (
	authorityFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0"
	appScope        = "https://graph.microsoft.com/.default"
)

// delegatedScopes are requested in the device-code flow; reading a shared
// mailbox as a signed-in user needs Mail.Read.Shared.
var delegatedScopes = []string{"User.Read", "Mail.Read.Shared"}

// DeviceCodeNotify is called with the code the user must enter at the
// verification URL. Implementations forward it to the status bus.
type DeviceCodeNotify func(userCode, verificationURI string)

// NewHTTPClient returns an http.Client whose transport injects Graph bearer
// tokens, using the flow the configuration selects. The device-code flow
// blocks until the user completes verification or ctx ends.
func NewHTTPClient(ctx context.Context, cfg config.MailboxConfig, notify DeviceCodeNotify) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Flow {
	case "client_credentials":
		return newAppClient(ctx, cfg), nil
	case "device_code":
		return newDeviceClient(ctx, cfg, notify)
	default:
		return nil, fmt.Errorf("mailbox: unknown auth flow %q", cfg.Flow)
	}
}

// newAppClient builds an app-only client via the client-credentials grant.
// Token refresh is handled by the oauth2 transport.
func newAppClient(ctx context.Context, cfg config.MailboxConfig) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(authorityFormat, cfg.TenantID) + "/token",
		Scopes:       []string{appScope},
	}
	return cc.Client(ctx)
}

// newDeviceClient runs the device-code grant: request a code, hand it to the
// notifier, then poll the token endpoint until the user finishes signing in.
func newDeviceClient(ctx context.Context, cfg config.MailboxConfig, notify DeviceCodeNotify) (*http.Client, error) {
	authority := fmt.Sprintf(authorityFormat, cfg.TenantID)
	conf := &oauth2.Config{
		ClientID: cfg.ClientID,
		Scopes:   delegatedScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       authority + "/authorize",
			TokenURL:      authority + "/token",
			DeviceAuthURL: authority + "/devicecode",
		},
	}

	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("mailbox: requesting device code: %w", err)
	}
	if notify != nil {
		notify(da.UserCode, da.VerificationURI)
	}

	token, err := conf.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("mailbox: waiting for device sign-in: %w", err)
	}
	return conf.Client(ctx, token), nil
}
