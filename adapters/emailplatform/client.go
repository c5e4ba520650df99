// Package emailplatform adapts an IMAP mailbox into a third chat
// platform: each sender's address is a conversation, a poll cycle's
// new messages become KindIncomingMessage events (the subject as Text;
// message bodies are not fetched), and replies go out over SMTP.
package emailplatform

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/mikabele/canoe-go/internal/config"
)

// imapClient is a single-account IMAP connection with mutex-serialized
// access and reconnect-on-stale-NOOP.
type imapClient struct {
	cfg    config.EmailConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

func newIMAPClient(cfg config.EmailConfig, logger *slog.Logger) *imapClient {
	return &imapClient{cfg: cfg, logger: logger}
}

func (c *imapClient) connectLocked(ctx context.Context) error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	addr := net.JoinHostPort(c.cfg.IMAPHost, strconv.Itoa(c.cfg.IMAPPort))
	opts := imapclient.Options{
		TLSConfig: &tls.Config{ServerName: c.cfg.IMAPHost},
	}

	c.logger.Debug("emailplatform: connecting to IMAP server", "host", c.cfg.IMAPHost, "port", c.cfg.IMAPPort)

	client, err := imapclient.DialTLS(addr, &opts)
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("login as %s: %w", c.cfg.Username, err)
	}

	c.client = client
	c.logger.Info("emailplatform: IMAP connected", "host", c.cfg.IMAPHost, "user", c.cfg.Username)
	return nil
}

func (c *imapClient) ensureConnected(ctx context.Context) error {
	if c.client != nil {
		if err := c.client.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("emailplatform: IMAP connection stale, reconnecting")
	}
	return c.connectLocked(ctx)
}

func (c *imapClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// envelope is the summary metadata this adapter needs for a message:
// enough to both translate it into a chatevent.Event and advance the
// high-water mark.
type envelope struct {
	UID     uint32
	From    string
	Subject string
	Body    string
}

// listSince returns messages in mailbox with UID strictly greater than
// sinceUID, newest-last (ascending, so the high-water mark advances
// monotonically as the caller ranges over the result).
func (c *imapClient) listSince(ctx context.Context, mailbox string, sinceUID uint32) ([]envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	if _, err := c.client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(sinceUID + 1), Stop: 0}}},
	}
	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", mailbox, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	fetchOpts := &imap.FetchOptions{UID: true, Envelope: true}
	fetchCmd := c.client.Fetch(uidSet, fetchOpts)

	var envelopes []envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		env, ok := parseEnvelope(msg)
		if ok {
			envelopes = append(envelopes, env)
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	return envelopes, nil
}

func parseEnvelope(msg *imapclient.FetchMessageData) (envelope, bool) {
	var env envelope
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				env.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					env.From = data.Envelope.From[0].Addr()
				}
			}
		}
	}
	if env.UID == 0 {
		return env, false
	}
	env.Body = env.Subject
	return env, true
}
