package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
)

// defaultTimeout bounds a single round-trip to the signing service.
const defaultTimeout = 30 * time.Second

// RemoteConfig describes how to reach a remote signing service.
type RemoteConfig struct {
	// BaseURL of the signing service, for example
	// "https://signer.internal:8443".
	BaseURL string
	// AuthToken is attached as a bearer token when not empty.
	AuthToken string
	// Client to use for requests. A sane default is used when nil.
	Client *http.Client
}

// Remote is a production-shaped signing backend. It forwards connect, sign
// and disconnect to an external signing service over HTTP and never
// materializes the private key in this process. The service performs its
// own policy checks and may reject a signing request.
type Remote struct {
	mu        sync.Mutex
	cfg       RemoteConfig
	client    *http.Client
	sessionID string
	pub       crypto.PublicKey
}

var _ Backend = (*Remote)(nil)

// NewRemote returns a backend talking to the configured signing service.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, errors.ErrEmpty.New("base url")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Remote{
		cfg:    cfg,
		client: client,
	}, nil
}

type openSessionResponse struct {
	SessionID string `json:"session_id"`
	PublicKey []byte `json:"public_key"`
}

type signRequest struct {
	SigningBytes []byte `json:"signing_bytes"`
}

type signResponse struct {
	Signature []byte `json:"signature"`
}

// Connect opens a signing session with the remote service and returns the
// public key the service will sign under.
func (r *Remote) Connect(ctx context.Context) (crypto.PublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID != "" {
		return nil, errors.ErrState.New("already connected")
	}

	var resp openSessionResponse
	if err := r.call(ctx, "POST", "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, errors.ErrSigning.New("service returned no session")
	}
	pub := crypto.PublicKey(resp.PublicKey)
	if err := pub.Validate(); err != nil {
		return nil, errors.Wrap(err, "session public key")
	}
	r.sessionID = resp.SessionID
	r.pub = pub
	return pub, nil
}

// Sign forwards the transaction signing bytes to the service. The signing
// bytes are all that crosses the wire, the service cannot be asked for key
// material.
func (r *Remote) Sign(ctx context.Context, tx quartz.Transaction) (quartz.SignedTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stx quartz.SignedTransaction
	if r.sessionID == "" {
		return stx, errors.ErrState.New("not connected")
	}
	if err := tx.Validate(); err != nil {
		return stx, errors.Wrap(err, "transaction")
	}

	var resp signResponse
	path := fmt.Sprintf("/v1/sessions/%s/sign", r.sessionID)
	if err := r.call(ctx, "POST", path, signRequest{SigningBytes: tx.SigningBytes()}, &resp); err != nil {
		return stx, err
	}
	if len(resp.Signature) == 0 {
		return stx, errors.ErrSigning.New("service returned no signature")
	}
	if !r.pub.Verify(tx.SigningBytes(), resp.Signature) {
		return stx, errors.ErrSigning.New("service signature does not verify")
	}
	return quartz.SignedTransaction{
		Transaction: tx,
		PubKey:      []byte(r.pub),
		Signature:   resp.Signature,
	}, nil
}

// SignBatch signs sequentially, stopping at the first failure. The remote
// service offers no atomic batch operation.
func (r *Remote) SignBatch(ctx context.Context, txs []quartz.Transaction) ([]quartz.SignedTransaction, error) {
	return signBatch(ctx, r, txs)
}

// Disconnect closes the remote session. Idempotent, a session the service
// already dropped is not an error.
func (r *Remote) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		return nil
	}
	path := fmt.Sprintf("/v1/sessions/%s", r.sessionID)
	err := r.call(context.Background(), "DELETE", path, nil, nil)
	r.sessionID = ""
	r.pub = nil
	if err != nil && !errors.ErrNotFound.Is(err) {
		return errors.Wrap(err, "close session")
	}
	return nil
}

// call performs one JSON round-trip against the service, mapping transport
// failures to transient network errors and service rejections to signing
// errors.
func (r *Remote) call(ctx context.Context, method, path string, payload, dest interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return errors.Wrap(err, "encode request")
		}
	}
	req, err := http.NewRequest(method, r.cfg.BaseURL+path, &body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.AuthToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(errors.ErrTimeout, err.Error())
		}
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.ErrNotFound.Newf("%s %s", method, path)
	case resp.StatusCode >= 500:
		// Service side trouble, possibly temporary.
		return errors.ErrNetwork.Newf("service status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// The service refused, for example a policy violation.
		raw, _ := ioutil.ReadAll(resp.Body)
		return errors.ErrSigning.Newf("service rejected (%d): %s", resp.StatusCode, raw)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrap(errors.ErrSigning, "decode response: "+err.Error())
	}
	return nil
}
