package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
)

// Query runs a query-language statement and returns the matching records. The query language
// itself is interpreted server-side; the client passes it through verbatim.
func (c *Client) Query(ctx context.Context, query string) (*protocol.Result, error) {
	return c.call(ctx, false, url.Values{
		"operation": {"query"},
		"query":     {query},
	})
}

// Retrieve fetches a single record by its webservice id ("{moduleCode}x{itemId}", see
// FormatRecordID).
func (c *Client) Retrieve(ctx context.Context, id string) (*protocol.Result, error) {
	return c.call(ctx, false, url.Values{
		"operation": {"retrieve"},
		"id":        {id},
	})
}

// Create inserts a new record of the given element type. Mandatory fields, including the
// assigned-owner field, are validated by the server, not the client: a payload missing them is
// sent as-is and the server's error is surfaced.
func (c *Client) Create(ctx context.Context, elementType string, element map[string]interface{}) (*protocol.Result, error) {
	encoded, err := json.Marshal(element)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, true, url.Values{
		"operation":   {"create"},
		"element":     {string(encoded)},
		"elementType": {elementType},
	})
}

// Update writes back a previously retrieved record. The element must carry the record's id field
// and at least one mutated field.
func (c *Client) Update(ctx context.Context, element map[string]interface{}) (*protocol.Result, error) {
	encoded, err := json.Marshal(element)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, true, url.Values{
		"operation": {"update"},
		"element":   {string(encoded)},
	})
}

// Delete removes the record with the given webservice id.
func (c *Client) Delete(ctx context.Context, id string) (*protocol.Result, error) {
	return c.call(ctx, false, url.Values{
		"operation": {"delete"},
		"id":        {id},
	})
}

// Describe returns field metadata for an element type.
func (c *Client) Describe(ctx context.Context, elementType string) (*protocol.Result, error) {
	return c.call(ctx, false, url.Values{
		"operation":   {"describe"},
		"elementType": {elementType},
	})
}

// Close ends the session identified by sessionID. With PersistConnection set it returns an
// affirmative result immediately without any network traffic, leaving the cached session id
// valid for reuse.
func (c *Client) Close(ctx context.Context, sessionID string) (*protocol.Result, error) {
	conn, _ := c.snapshot()
	return c.closeSession(ctx, conn, sessionID)
}

func (c *Client) closeSession(ctx context.Context, conn connector.Connector, sessionID string) (*protocol.Result, error) {
	if c.persist {
		ok := true
		return &protocol.Result{Success: &ok}, nil
	}
	response, err := conn.PostForm(ctx, url.Values{
		"operation":   {"logout"},
		"sessionName": {sessionID},
	})
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckStatus(response); err != nil {
		return nil, err
	}
	envelope := protocol.Decode(response.Body)
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return envelope, nil
}

// FormatRecordID joins a module code and an item id into the webservice id format used by
// Retrieve and Delete.
func FormatRecordID(moduleCode, itemID string) string {
	return moduleCode + "x" + itemID
}

// SplitRecordID splits a webservice id into its module code and item id.
func SplitRecordID(id string) (moduleCode, itemID string, err error) {
	for i := 0; i < len(id); i++ {
		if id[i] == 'x' {
			if i == 0 || i == len(id)-1 {
				break
			}
			return id[:i], id[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed record id %q: want {moduleCode}x{itemId}", id)
}
