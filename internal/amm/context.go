package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type senderKey struct{}

type txKey struct{}

// WithSender returns a context whose calls are attributed to sender.
func WithSender(ctx context.Context, sender common.Address) context.Context {
	return context.WithValue(ctx, senderKey{}, sender)
}

// Sender returns the calling address carried by ctx, or the zero address.
func Sender(ctx context.Context) common.Address {
	if ctx == nil {
		return common.Address{}
	}
	sender, _ := ctx.Value(senderKey{}).(common.Address)
	return sender
}

func inTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(txKey{}).(*tx)
	return ok
}

func txFrom(ctx context.Context) *tx {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}
