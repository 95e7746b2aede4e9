package smt

import (
	"context"
	"fmt"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"golang.org/x/sync/errgroup"
)

// VerifyRequest is a single proof to check against a claimed root
type VerifyRequest struct {
	Root   crypto.Digest `json:"root"`
	Proof  *Proof        `json:"proof"`
	Leaves []Leaf        `json:"leaves"`
}

// VerifyAll() verifies many proofs concurrently and returns the verdict of each request by index
// parallelism <= 0 is unbounded, the first malformed proof or a cancelled context stops the batch
func VerifyAll(ctx context.Context, hasher crypto.HasherI, requests []VerifyRequest, parallelism int) ([]bool, lib.ErrorI) {
	if hasher == nil {
		hasher = crypto.DefaultHasher()
	}
	results := make([]bool, len(requests))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i := range requests {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			req := requests[i]
			if req.Proof == nil {
				return ErrMalformedProof(fmt.Sprintf("request %d carries no proof", i))
			}
			valid, err := req.Proof.Verify(hasher, req.Root, req.Leaves)
			if err != nil {
				return err
			}
			results[i] = valid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if e, ok := err.(lib.ErrorI); ok {
			return nil, e
		}
		return nil, lib.ErrCancelled(err)
	}
	return results, nil
}
