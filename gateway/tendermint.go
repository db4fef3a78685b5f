package gateway

import (
	"context"
	"strings"

	rpcclient "github.com/tendermint/tendermint/rpc/client"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
)

// Tendermint is a Gateway implementation on top of a tendermint RPC
// connection. The freshness token is the latest block hash, which ties a
// signature to a recent point of the chain.
type Tendermint struct {
	conn rpcclient.Client
}

var _ Gateway = (*Tendermint)(nil)

// NewTendermint wraps an existing tendermint client connection.
func NewTendermint(conn rpcclient.Client) *Tendermint {
	return &Tendermint{conn: conn}
}

// DialTendermint connects to a tendermint node by its RPC address, for
// example "tcp://localhost:26657".
func DialTendermint(remote string) *Tendermint {
	return NewTendermint(rpcclient.NewHTTP(remote, "/websocket"))
}

// FreshnessToken returns the latest block hash known to the node.
func (g *Tendermint) FreshnessToken(ctx context.Context) ([]byte, error) {
	status, err := g.conn.Status()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "status: %s", err.Error())
	}
	hash := status.SyncInfo.LatestBlockHash
	if len(hash) == 0 {
		return nil, errors.ErrState.New("node has no blocks yet")
	}
	return hash, nil
}

// Submit broadcasts the signed transaction and waits for it to be included
// in a block. CheckTx and DeliverTx rejections are permanent, transport
// level failures are transient.
func (g *Tendermint) Submit(ctx context.Context, stx quartz.SignedTransaction) (*Confirmation, error) {
	bz, err := stx.Marshal()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "marshaling: %s", err.Error())
	}

	res, err := g.conn.BroadcastTxCommit(bz)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "submit tx: %s", err.Error())
	}

	// A checktx error did not make it into the mempool and will not
	// make it into a block.
	if res.CheckTx.Code != 0 {
		return nil, errors.ErrSubmission.Newf("checktx code %d: %s", res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.DeliverTx.Code != 0 {
		return nil, errors.ErrSubmission.Newf("delivertx code %d: %s", res.DeliverTx.Code, res.DeliverTx.Log)
	}
	return &Confirmation{
		TxHash: res.Hash,
		Height: res.Height,
	}, nil
}

// Confirm checks whether the transaction with the given hash was finalized
// on chain.
func (g *Tendermint) Confirm(ctx context.Context, txHash []byte) (*Confirmation, error) {
	res, err := g.conn.Tx(txHash, false)
	if err != nil {
		// The RPC layer reports a missing transaction as a plain
		// error, there is no dedicated code to switch on.
		if strings.Contains(err.Error(), "not found") {
			return nil, errors.Wrapf(errors.ErrNotFound, "tx %X", txHash)
		}
		return nil, errors.Wrapf(errors.ErrNetwork, "get tx: %s", err.Error())
	}
	if res.TxResult.Code != 0 {
		return nil, errors.ErrSubmission.Newf("delivertx code %d: %s", res.TxResult.Code, res.TxResult.Log)
	}
	return &Confirmation{
		TxHash: res.Hash,
		Height: res.Height,
	}, nil
}
