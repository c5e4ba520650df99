// Package contactbook resolves a conversation's sender identifier (a
// phone number or an email address) to a human-readable contact name
// by querying a CardDAV address book. The resolved name lets a
// Scenario greet a participant by name instead of their raw platform
// identifier.
package contactbook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/httpkit"
)

// ContactResolver resolves a sender identifier to a contact name. The
// bridge/adapter packages use this to inject a display name hint; nil
// resolvers disable the lookup.
type ContactResolver interface {
	// Resolve returns the contact name for the given sender identifier
	// (a phone number or an email address). Returns ("", false) if no
	// matching contact is found.
	Resolve(senderID string) (name string, ok bool)
}

// Resolver is a CardDAV-backed ContactResolver. It periodically
// refreshes an in-memory index of phone numbers and email addresses to
// display names; lookups never block on the network.
type Resolver struct {
	cfg    config.ContactBookConfig
	logger *slog.Logger
	client *carddav.Client

	mu    sync.RWMutex
	index map[string]string // normalized phone/email -> display name
}

// New creates a contact book resolver. Call Refresh once before first
// use, then Run to keep the index current in the background.
func New(cfg config.ContactBookConfig, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
	var authClient webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		authClient = &basicAuthClient{base: httpClient, username: cfg.Username, password: cfg.Password}
	}

	client, err := carddav.NewClient(authClient, cfg.CardDAVURL)
	if err != nil {
		return nil, fmt.Errorf("contactbook: create CardDAV client: %w", err)
	}

	return &Resolver{
		cfg:    cfg,
		logger: logger,
		client: client,
		index:  make(map[string]string),
	}, nil
}

// Resolve implements ContactResolver.
func (r *Resolver) Resolve(senderID string) (string, bool) {
	key := normalize(senderID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.index[key]
	return name, ok
}

// Refresh queries every address book on the server and rebuilds the
// in-memory index. Safe for concurrent use with Resolve (which never
// blocks on it); not safe for concurrent use with itself.
func (r *Resolver) Refresh(ctx context.Context) error {
	homeSet, err := r.client.FindAddressBookHomeSet(ctx, "")
	if err != nil {
		return fmt.Errorf("contactbook: find address book home set: %w", err)
	}

	addressBooks, err := r.client.FindAddressBooks(ctx, homeSet)
	if err != nil {
		return fmt.Errorf("contactbook: find address books: %w", err)
	}

	next := make(map[string]string)
	for _, ab := range addressBooks {
		objects, err := r.client.QueryAddressBook(ctx, ab.Path, &carddav.AddressBookQuery{
			DataRequest: carddav.AddressDataRequest{AllProp: true},
		})
		if err != nil {
			r.logger.Warn("contactbook: query address book failed", "path", ab.Path, "error", err)
			continue
		}
		for _, obj := range objects {
			indexCard(next, obj.Card)
		}
	}

	r.mu.Lock()
	r.index = next
	r.mu.Unlock()

	r.logger.Info("contactbook: refreshed contact index", "entries", len(next))
	return nil
}

// Run refreshes the index immediately, then on a fixed interval until
// ctx is cancelled. Refresh errors are logged and do not stop the loop
// -- a stale index is preferable to none.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("contactbook: initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("contactbook: periodic refresh failed", "error", err)
			}
		}
	}
}

// indexCard extracts the display name and every phone/email identifier
// from a vCard, adding normalized entries to idx.
func indexCard(idx map[string]string, card vcard.Card) {
	name := card.PreferredValue(vcard.FieldFormattedName)
	if name == "" {
		name = card.PreferredValue(vcard.FieldNickname)
	}
	if name == "" {
		return
	}

	for _, field := range card[vcard.FieldTelephone] {
		idx[normalize(field.Value)] = name
	}
	for _, field := range card[vcard.FieldEmail] {
		idx[normalize(field.Value)] = name
	}
}

// normalize reduces a phone number or email address to a comparable
// form: lowercased, with phone-number punctuation stripped.
func normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if strings.Contains(id, "@") {
		return id
	}
	var sb strings.Builder
	for _, r := range id {
		if r == '+' || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// basicAuthClient wraps an http.Client with HTTP basic auth for
// CardDAV servers that require it.
type basicAuthClient struct {
	base     *http.Client
	username string
	password string
}

func (c *basicAuthClient) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)
	return c.base.Do(req)
}
