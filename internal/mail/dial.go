// Copyright (c) 2026 Sentinova Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/manisang89/sentinova/internal/config"
)

const dialTimeout = 30 * time.Second

// Dialer opens authenticated IMAP sessions for configured mailboxes. OAuth2
// token sources are cached per mailbox so refreshed tokens are reused across
// polls.
type Dialer struct {
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewDialer creates a Dialer.
func NewDialer() *Dialer {
	return &Dialer{sources: make(map[string]oauth2.TokenSource)}
}

// Dial connects to the mailbox host over implicit TLS and authenticates.
// Callers own the returned client and must Close it.
func (d *Dialer) Dial(ctx context.Context, mb config.MailboxConfig) (*imapclient.Client, error) {
	dialer := tls.Dialer{NetDialer: &net.Dialer{Timeout: dialTimeout}}
	conn, err := dialer.DialContext(ctx, "tcp", mb.Server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", mb.Server, err)
	}

	c := imapclient.New(conn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})

	switch mb.Auth {
	case "oauth2":
		tok, err := d.tokenSource(mb).Token()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("oauth2 token for %s: %w", mb.Alias, err)
		}
		if err := c.Authenticate(sasl.NewXoauth2Client(mb.Address, tok.AccessToken)); err != nil {
			c.Close()
			return nil, fmt.Errorf("authenticate %s: %w", mb.Alias, err)
		}
	default:
		if err := c.Login(mb.Address, mb.Password).Wait(); err != nil {
			c.Close()
			return nil, fmt.Errorf("login %s: %w", mb.Alias, err)
		}
	}
	return c, nil
}

func (d *Dialer) tokenSource(mb config.MailboxConfig) oauth2.TokenSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.sources[mb.Alias]; ok {
		return ts
	}
	conf := &clientcredentials.Config{
		ClientID:     mb.OAuth2.ClientID,
		ClientSecret: mb.OAuth2.ClientSecret,
		TokenURL:     mb.OAuth2.TokenURL,
		Scopes:       mb.OAuth2.Scopes,
	}
	ts := conf.TokenSource(context.Background())
	d.sources[mb.Alias] = ts
	return ts
}
