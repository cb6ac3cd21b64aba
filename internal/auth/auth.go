// Package auth obtains and persists the OAuth2 credentials of the Drive
// backend. A stored token is used when present; otherwise the interactive
// loopback flow asks the user for consent and stores the result.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/term"
	drive "google.golang.org/api/drive/v3"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
)

// Config locates the client secrets and the persisted token.
type Config struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	ListenAddr      string `yaml:"auth_listen"`
}

// Authenticator produces authenticated HTTP clients for Drive.
type Authenticator struct {
	config      Config
	oauth       *oauth2.Config
	logger      *zap.Logger
	interactive func() bool
	showURL     func(string)
	timeout     time.Duration
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithOAuthConfig replaces the client configuration read from the
// credentials file.
func WithOAuthConfig(c *oauth2.Config) Option {
	return func(a *Authenticator) {
		a.oauth = c
	}
}

// WithInteractive overrides the terminal check guarding the consent flow.
func WithInteractive(fn func() bool) Option {
	return func(a *Authenticator) {
		a.interactive = fn
	}
}

// WithURLHandler receives the consent URL instead of printing it.
func WithURLHandler(fn func(string)) Option {
	return func(a *Authenticator) {
		a.showURL = fn
	}
}

// WithTimeout bounds how long the consent flow waits for the redirect.
func WithTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		a.timeout = d
	}
}

// New creates an authenticator. Unless WithOAuthConfig is given the client
// secrets are read from config.CredentialsFile.
func New(config Config, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		config:      config,
		logger:      zap.NewNop(),
		interactive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		timeout:     5 * time.Minute,
	}
	a.showURL = func(url string) {
		fmt.Fprintf(os.Stderr, "Open this URL in a browser to authorize gdrivefs:\n\n  %s\n\n", url)
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.config.TokenFile == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "token file path is required").
			WithComponent("auth")
	}
	if a.oauth == nil {
		data, err := os.ReadFile(config.CredentialsFile)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeCredentialsMissing, "cannot read client credentials").
				WithComponent("auth").WithContext("path", config.CredentialsFile).WithCause(err)
		}
		oauthConfig, err := google.ConfigFromJSON(data, drive.DriveScope)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid client credentials").
				WithComponent("auth").WithContext("path", config.CredentialsFile).WithCause(err)
		}
		a.oauth = oauthConfig
	}
	return a, nil
}

// HTTPClient returns a client that authorizes every request. Refreshed
// tokens are written back to the token file.
func (a *Authenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	token, err := LoadToken(a.config.TokenFile)
	if err != nil {
		a.logger.Info("no usable stored token, starting authorization", zap.Error(err))
		token, err = a.Authorize(ctx)
		if err != nil {
			return nil, err
		}
	}

	source := newPersistingSource(a.oauth.TokenSource(ctx, token), a.config.TokenFile, token, func(err error) {
		if err != nil {
			a.logger.Warn("failed to persist refreshed token", zap.Error(err))
		}
	})
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source)), nil
}

// Authorize runs the loopback consent flow and persists the new token.
func (a *Authenticator) Authorize(ctx context.Context) (*oauth2.Token, error) {
	if !a.interactive() {
		return nil, errors.NewError(errors.ErrCodeCredentialsMissing,
			"no stored token and no terminal for interactive authorization (run 'gdrivefs auth')").
			WithComponent("auth")
	}

	addr := a.config.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for the authorization redirect on %s: %w", addr, err)
	}

	oauthConfig := *a.oauth
	oauthConfig.RedirectURL = "http://" + listener.Addr().String() + "/"

	state, err := randomState()
	if err != nil {
		listener.Close()
		return nil, err
	}

	codes := make(chan string, 1)
	failures := make(chan error, 1)
	server := &http.Server{
		Handler:           redirectHandler(state, codes, failures),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			failures <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.showURL(oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	waitCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var code string
	select {
	case code = <-codes:
	case err := <-failures:
		return nil, errors.NewError(errors.ErrCodeAuthenticationFailed, "authorization failed").
			WithComponent("auth").WithCause(err)
	case <-waitCtx.Done():
		return nil, errors.NewError(errors.ErrCodeAuthenticationFailed, "timed out waiting for authorization").
			WithComponent("auth").WithCause(waitCtx.Err())
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeAuthenticationFailed, "exchanging authorization code").
			WithComponent("auth").WithCause(err)
	}
	if err := SaveToken(a.config.TokenFile, token); err != nil {
		return nil, err
	}
	a.logger.Info("authorization complete", zap.String("token_file", a.config.TokenFile))
	return token, nil
}

func redirectHandler(state string, codes chan<- string, failures chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if reason := query.Get("error"); reason != "" {
			io.WriteString(w, "Authorization was denied. You can close this window.\n")
			select {
			case failures <- fmt.Errorf("consent denied: %s", reason):
			default:
			}
			return
		}
		code := query.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		io.WriteString(w, "Authorization complete. You can close this window.\n")
		select {
		case codes <- code:
		default:
		}
	})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
