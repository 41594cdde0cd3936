// Package gmailsrc is a thin wrapper around google.golang.org/api/gmail/v1,
// exposing only the three endpoints spec §6 allows the core to call:
// users.history.list, users.messages.list (bootstrap only), and
// users.messages.get. Grounded on the teacher's NewGmailClient
// (internal/email/gmail.go) OAuth2-client construction, trimmed to the
// closed endpoint set this spec permits.
package gmailsrc

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps a *gmail.Service scoped to one user.
type Client struct {
	service *gmail.Service
	userID  string
}

// New builds a Client authenticated with tokenSource, the way the
// teacher's NewGmailClient wires an oauth2.Config-derived HTTP client into
// gmail.NewService.
func New(ctx context.Context, tokenSource oauth2.TokenSource, userID string) (*Client, error) {
	httpClient := oauth2.NewClient(ctx, tokenSource)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gmailsrc: create service: %w", err)
	}
	if userID == "" {
		userID = "me"
	}
	return &Client{service: service, userID: userID}, nil
}

// HistoryPage is one page of users.history.list.
type HistoryPage struct {
	HistoryID     uint64
	MessageIDs    []string
	NextPageToken string
}

const historyPageSize = 100

// ListHistory fetches one page of history starting at startHistoryID,
// following pageToken when non-empty (spec §4.7 pagination).
func (c *Client) ListHistory(ctx context.Context, startHistoryID uint64, pageToken string) (HistoryPage, error) {
	call := c.service.Users.History.List(c.userID).
		StartHistoryId(startHistoryID).
		MaxResults(historyPageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return HistoryPage{}, err
	}

	page := HistoryPage{HistoryID: resp.HistoryId, NextPageToken: resp.NextPageToken}
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				page.MessageIDs = append(page.MessageIDs, added.Message.Id)
			}
		}
	}
	return page, nil
}

// BootstrapHistoryID calls users.messages.list to obtain the server's
// current history id, used only when sync_state has no cursor yet (spec
// §4.7 cursor discipline).
func (c *Client) BootstrapHistoryID(ctx context.Context) (uint64, error) {
	resp, err := c.service.Users.Messages.List(c.userID).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	if len(resp.Messages) == 0 {
		return 0, nil
	}
	msg, err := c.service.Users.Messages.Get(c.userID, resp.Messages[0].Id).
		Format("minimal").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return msg.HistoryId, nil
}

// GetMessage fetches one full message.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	return c.service.Users.Messages.Get(c.userID, id).Context(ctx).Do()
}
