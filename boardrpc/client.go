package boardrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/trustee"
)

const (
	// DefaultRetries is how many attempts request makes per call: a failed
	// dial or an Internal (HTTP 500) reply is retried with a doubling delay
	// until the attempts run out.
	DefaultRetries = 3
	// DefaultTimeout is the client's per-request timeout.
	DefaultTimeout = 10 * time.Second
)

// Client is the board RPC HTTP client.
type Client struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// NewClient connects to host, pinging it to fail fast on a bad address.
func NewClient(host string) (*Client, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		c:       &http.Client{Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	if _, status, err := c.request(http.MethodGet, nil, nil, PingEndpoint); err != nil {
		return nil, err
	} else if status != http.StatusOK {
		return nil, fmt.Errorf("boardrpc: server at %s not reachable (status %d)", host, status)
	}
	return c, nil
}

// CreateBoard calls POST /boards, signing the request with signKey.
func (c *Client) CreateBoard(id uuid.UUID, name string, perms board.Permissions, signKey *ethereum.SignKeys) (CreateBoardResponse, error) {
	signerPK, _ := signKey.HexString()
	payload, err := board.CreateBoardSigningBytes(id, name, perms)
	if err != nil {
		return CreateBoardResponse{}, fmt.Errorf("boardrpc: sign create board: %w", err)
	}
	sig, err := signKey.SignEthereum(payload)
	if err != nil {
		return CreateBoardResponse{}, fmt.Errorf("boardrpc: sign create board: %w", err)
	}
	var out CreateBoardResponse
	err = c.do(http.MethodPost, CreateBoardRequest{UUID: id, Name: name, Permissions: perms, SignerPK: signerPK, Signature: sig}, &out, nil, BoardsEndpoint)
	return out, err
}

// AddEntries calls POST /boards/{id}/entries.
func (c *Client) AddEntries(id uuid.UUID, entries []board.NewDataEntry) (AddEntriesResponse, error) {
	var out AddEntriesResponse
	err := c.do(http.MethodPost, AddEntriesRequest{Entries: entries}, &out, nil, "boards", id.String(), "entries")
	return out, err
}

// ListEntries calls GET /boards/{id}/entries?from=startSeq.
func (c *Client) ListEntries(id uuid.UUID, startSeq uint64) (ListEntriesResponse, error) {
	var out ListEntriesResponse
	err := c.do(http.MethodGet, nil, &out, []string{"from", fmt.Sprintf("%d", startSeq)}, "boards", id.String(), "entries")
	return out, err
}

// ListBoards calls GET /boards.
func (c *Client) ListBoards() (ListBoardsResponse, error) {
	var out ListBoardsResponse
	err := c.do(http.MethodGet, nil, &out, nil, BoardsEndpoint)
	return out, err
}

// ModifyBoard calls POST /boards/{id}, signing the request with signKey.
func (c *Client) ModifyBoard(id uuid.UUID, update board.Board, signKey *ethereum.SignKeys) (board.Board, error) {
	signerPK, _ := signKey.HexString()
	payload, err := board.ModifyBoardSigningBytes(id, update)
	if err != nil {
		return board.Board{}, fmt.Errorf("boardrpc: sign modify board: %w", err)
	}
	sig, err := signKey.SignEthereum(payload)
	if err != nil {
		return board.Board{}, fmt.Errorf("boardrpc: sign modify board: %w", err)
	}
	var out board.Board
	err = c.do(http.MethodPost, ModifyBoardRequest{Board: update, SignerPK: signerPK, Signature: sig}, &out, nil, "boards", id.String())
	return out, err
}

func (c *Client) do(method string, body, out any, params []string, urlPath ...string) error {
	data, status, err := c.request(method, body, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		var wire struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}
		if jerr := json.Unmarshal(data, &wire); jerr == nil && wire.Err != "" {
			return fmt.Errorf("boardrpc: %s (code %d, status %d)", wire.Err, wire.Code, status)
		}
		return fmt.Errorf("boardrpc: status %d: %s", status, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("boardrpc: marshal request: %w", err)
		}
	}

	u, err := url.Parse(c.host.String())
	if err != nil {
		return nil, 0, err
	}
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i+1 < len(params); i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	var resp *http.Response
	delay := 500 * time.Millisecond
	for attempt := 1; attempt <= c.retries; attempt++ {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, rerr := http.NewRequest(method, u.String(), reqBody)
		if rerr != nil {
			return nil, 0, fmt.Errorf("boardrpc: build request: %w", rerr)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err = c.c.Do(req)
		if err == nil && (resp.StatusCode != http.StatusInternalServerError || attempt == c.retries) {
			break
		}
		if err == nil {
			resp.Body.Close()
			log.Warnw("boardrpc: internal server error", "attempt", attempt)
		} else {
			log.Warnw("boardrpc: request failed", "attempt", attempt, "error", err)
		}
		time.Sleep(delay)
		delay *= 2
	}
	if err != nil {
		return nil, 0, fmt.Errorf("boardrpc: request failed after %d attempts: %w", c.retries, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("boardrpc: read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// TrusteeClient adapts Client into trustee.BoardClient for one board.
// OutgoingMessage.Signature is already the trustee's signature over the
// statement; PostEntries only carries it across the wire.
type TrusteeClient struct {
	Client   *Client
	BoardID  uuid.UUID
	SignerPK string
}

// FetchEntries implements trustee.BoardClient.
func (t *TrusteeClient) FetchEntries(_ context.Context, fromSeq uint64) ([]localboard.RawMessage, uint64, error) {
	resp, err := t.Client.ListEntries(t.BoardID, fromSeq)
	if err != nil {
		return nil, fromSeq, err
	}
	var out []localboard.RawMessage
	for _, e := range resp.Entries {
		if e.Kind != board.KindDataEntry {
			continue
		}
		out = append(out, localboard.RawMessage{ExternalSeq: e.SequenceID, SignerPK: e.SignerPK, Signature: e.Signature, Statement: e.Payload})
	}
	return out, resp.LastSequenceID + 1, nil
}

// PostEntries implements trustee.BoardClient.
func (t *TrusteeClient) PostEntries(_ context.Context, msgs []trustee.OutgoingMessage) error {
	entries := make([]board.NewDataEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = board.NewDataEntry{Data: m.Statement, Timestamp: time.Now().Unix(), SignerPK: t.SignerPK, Signature: m.Signature}
	}
	_, err := t.Client.AddEntries(t.BoardID, entries)
	return err
}
