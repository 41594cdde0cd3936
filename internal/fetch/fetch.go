package fetch

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/nathanvale/capture-bridge/internal/ledger"
)

var (
	errMissingMessageID = errors.New("fetch: missing_message_id")
	errMissingFrom      = errors.New("fetch: missing_from")
)

// MessageGetter is the single Gmail call Fetcher depends on. gmailsrc.Client
// satisfies it; tests supply a fake instead of a real *gmail.Service.
type MessageGetter interface {
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// Fetcher calls Gmail's messages.get and extracts metadata, logging
// failures to errors_log before propagating the original error unchanged
// (spec §4.9). Logging errors are swallowed — the original error always
// wins.
type Fetcher struct {
	Source MessageGetter
	Store  *ledger.Store
	Now    func() string
}

// FetchAndExtract retrieves message id and extracts its metadata.
func (f *Fetcher) FetchAndExtract(ctx context.Context, id string) (Metadata, error) {
	msg, err := f.Source.GetMessage(ctx, id)
	if err != nil {
		f.logFailure(id, err)
		return Metadata{}, err
	}

	meta, err := ExtractMetadata(msg)
	if err != nil {
		f.logFailure(id, err)
		return Metadata{}, err
	}
	return meta, nil
}

func (f *Fetcher) logFailure(messageID string, cause error) {
	code := 0
	var apiErr *googleapi.Error
	if errors.As(cause, &apiErr) {
		code = apiErr.Code
	}
	context := fmt.Sprintf("message_id=%s", messageID)
	// Intentionally ignore the append error: logging must never mask the
	// original failure being propagated to the caller.
	_ = f.Store.AppendError("gmail.fetchMessage", code, cause.Error(), context, f.Now())
}
