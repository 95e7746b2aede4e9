package rpc

import (
	"errors"
	"net/http"
	"slices"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/julienschmidt/httprouter"
)

// Version writes the software version
func (s *Server) Version(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, SoftwareVersion, http.StatusOK)
}

// Versions responds with every known version ordered by id
func (s *Server) Versions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	versions, err := s.store.Versions()
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, versions, http.StatusOK)
}

// Root responds with the root digest of a committed version
func (s *Server) Root(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(versionRequest)
	if ok := s.unmarshal(w, r, req); !ok {
		return
	}
	if err := s.readOnlyView(req.Version, func(v *smt.View) lib.ErrorI {
		write(w, RootResult{Version: v.Version(), Root: v.Root()}, http.StatusOK)
		return nil
	}); err != nil {
		writeError(w, err)
	}
}

// Get responds with the values of a set of keys
func (s *Server) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(keysRequest)
	if ok := s.unmarshal(w, r, req); !ok {
		return
	}
	if err := s.readOnlyView(req.Version, func(v *smt.View) lib.ErrorI {
		result := GetResult{RootResult: RootResult{Version: v.Version(), Root: v.Root()}, Leaves: make([]smt.Leaf, 0, len(req.Keys))}
		for _, k := range req.Keys {
			value, err := v.Get(k)
			if err != nil {
				return err
			}
			result.Leaves = append(result.Leaves, smt.Leaf{Key: k, Value: value})
		}
		write(w, result, http.StatusOK)
		return nil
	}); err != nil {
		writeError(w, err)
	}
}

// Prove responds with a single proof of a set of keys and the sorted leaves it authenticates
func (s *Server) Prove(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(keysRequest)
	if ok := s.unmarshal(w, r, req); !ok {
		return
	}
	if err := s.readOnlyView(req.Version, func(v *smt.View) lib.ErrorI {
		proof, err := v.MerkleProof(req.Keys)
		if err != nil {
			return err
		}
		keys := slices.Clone(req.Keys)
		slices.SortFunc(keys, func(a, b crypto.Digest) int { return a.Compare(b) })
		leaves := make([]smt.Leaf, 0, len(keys))
		for _, k := range keys {
			value, e := v.Get(k)
			if e != nil {
				return e
			}
			leaves = append(leaves, smt.Leaf{Key: k, Value: value})
		}
		write(w, ProveResult{
			RootResult: RootResult{Version: v.Version(), Root: v.Root()},
			Leaves:     leaves,
			Proof:      proof,
			Encoded:    proof.String(),
			Size:       proof.Size(),
		}, http.StatusOK)
		return nil
	}); err != nil {
		writeError(w, err)
	}
}

// Verify checks a proof against a claimed root, it never touches the store
func (s *Server) Verify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(verifyRequest)
	if ok := s.unmarshal(w, r, req); !ok {
		return
	}
	proof := req.Proof
	if req.Encoded != "" {
		var err lib.ErrorI
		if proof, err = smt.NewProofFromString(req.Encoded); err != nil {
			writeError(w, err)
			return
		}
	}
	if proof == nil {
		writeError(w, ErrInvalidParams(errors.New("a proof is required")))
		return
	}
	valid, err := proof.Verify(s.hasher, req.Root, req.Leaves)
	s.metrics.ObserveVerify(valid, err)
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, VerifyResult{Valid: valid}, http.StatusOK)
}
