package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/canopy-network/vsmt/store"
	"github.com/spf13/cobra"
)

/*
	The tree commands below open the store directly and are meant for the owner of the data directory.
	Every write forks the latest committed version, applies the change and commits it as a new version.
	Reads default to the latest committed version, use --version to read an older one.
*/

var version = uint64(0)

func init() {
	for _, cmd := range []*cobra.Command{getCmd, rootHashCmd, proveCmd} {
		cmd.Flags().Uint64Var(&version, "version", 0, "committed version to read, 0 is the latest")
	}
}

// WriteResult is what a committed write reports
type WriteResult struct {
	Version lib.VersionID   `json:"version"`
	Parent  lib.VersionID   `json:"parent"`
	Root    crypto.Digest   `json:"root"`
	Old     []crypto.Digest `json:"old"`
}

var (
	updateCmd = &cobra.Command{
		Use:   "update <key> <value> [<key> <value>...]",
		Short: "set keys to values in a new committed version",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected key value pairs, got %d arguments", len(args))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			leaves := make([]smt.Leaf, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				leaves = append(leaves, smt.Leaf{Key: argToDigest(args[i]), Value: argToDigest(args[i+1])})
			}
			writeToConsole(write(leaves))
		},
	}

	removeCmd = &cobra.Command{
		Use:   "remove <key> [<key>...]",
		Short: "remove keys in a new committed version",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			leaves := make([]smt.Leaf, 0, len(args))
			for _, k := range argsToDigests(args) {
				leaves = append(leaves, smt.Leaf{Key: k})
			}
			writeToConsole(write(leaves))
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <key> [<key>...] --version=1",
		Short: "read the values of keys, unset keys read as the zero digest",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			keys := argsToDigests(args)
			writeToConsole(read(func(v *smt.View) (any, lib.ErrorI) {
				leaves := make([]smt.Leaf, 0, len(keys))
				for _, k := range keys {
					value, err := v.Get(k)
					if err != nil {
						return nil, err
					}
					leaves = append(leaves, smt.Leaf{Key: k, Value: value})
				}
				return leaves, nil
			}))
		},
	}

	rootHashCmd = &cobra.Command{
		Use:   "root --version=1",
		Short: "print the root digest of a committed version",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(read(func(v *smt.View) (any, lib.ErrorI) {
				return v.Root().String(), nil
			}))
		},
	}

	versionsCmd = &cobra.Command{
		Use:   "versions",
		Short: "list every known version",
		Run: func(cmd *cobra.Command, args []string) {
			db, _ := openStore(nil)
			defer db.Close()
			writeToConsole(db.Versions())
		},
	}

	proveCmd = &cobra.Command{
		Use:   "prove <key> [<key>...] --version=1",
		Short: "print a single hex encoded proof of every key",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			keys := argsToDigests(args)
			writeToConsole(read(func(v *smt.View) (any, lib.ErrorI) {
				proof, err := v.MerkleProof(keys)
				if err != nil {
					return nil, err
				}
				return proof.String(), nil
			}))
		},
	}

	verifyCmd = &cobra.Command{
		Use:   "verify <root> <proof> <key>=<value> [<key>=<value>...]",
		Short: "check a hex encoded proof against a root, offline",
		Args:  cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			hasher, err := smt.NewHasher(config.TreeConfig)
			if err != nil {
				l.Fatal(err.Error())
			}
			root, e := crypto.NewDigestFromString(args[0])
			if e != nil {
				l.Fatal(e.Error())
			}
			proof, err := smt.NewProofFromString(args[1])
			if err != nil {
				l.Fatal(err.Error())
			}
			leaves := make([]smt.Leaf, 0, len(args)-2)
			for _, arg := range args[2:] {
				leaves = append(leaves, argToLeaf(arg))
			}
			// the proof authenticates the leaves in key order
			slices.SortFunc(leaves, func(a, b smt.Leaf) int { return a.Key.Compare(b.Key) })
			writeToConsole(proof.Verify(hasher, root, leaves))
		},
	}

	verifyBatchCmd = &cobra.Command{
		Use:   "verify-batch <file.json>",
		Short: "check a json array of {root, proof, leaves} requests concurrently, offline",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			hasher, err := smt.NewHasher(config.TreeConfig)
			if err != nil {
				l.Fatal(err.Error())
			}
			var requests []smt.VerifyRequest
			if err = lib.NewJSONFromFile(&requests, "", args[0]); err != nil {
				l.Fatal(err.Error())
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			writeToConsole(smt.VerifyAll(ctx, hasher, requests, config.VerifyParallelism))
		},
	}
)

// write() forks the latest committed version, applies the leaves and commits
func write(leaves []smt.Leaf) (*WriteResult, lib.ErrorI) {
	defer lib.TimeTrack(l, "write", time.Now())
	db, hasher := openStore(nil)
	defer db.Close()
	latest, err := db.Latest()
	if err != nil {
		return nil, err
	}
	tree, err := smt.Open(db, hasher, latest.ID, nil, l)
	if err != nil {
		return nil, err
	}
	old, err := tree.UpdateAll(leaves)
	if err != nil {
		if e := tree.Discard(); e != nil {
			l.Error(e.Error())
		}
		return nil, err
	}
	id, root, err := tree.Commit()
	if err != nil {
		return nil, err
	}
	return &WriteResult{Version: id, Parent: latest.ID, Root: root, Old: old}, nil
}

// read() runs the callback against the committed version selected by --version
func read(callback func(v *smt.View) (any, lib.ErrorI)) (any, lib.ErrorI) {
	db, hasher := openStore(nil)
	defer db.Close()
	return readVersion(db, hasher, lib.VersionID(version), callback)
}

// readVersion() opens a committed version of db, 0 is the latest
func readVersion(db *store.Store, hasher crypto.HasherI, id lib.VersionID, callback func(v *smt.View) (any, lib.ErrorI)) (any, lib.ErrorI) {
	if id == 0 {
		latest, err := db.Latest()
		if err != nil {
			return nil, err
		}
		id = latest.ID
	}
	snapshot, err := db.Checkout(id)
	if err != nil {
		return nil, err
	}
	return callback(smt.NewView(snapshot, hasher, nil))
}

// parseDigest() converts an argument into a digest, either hex or hashed when hash is set
func parseDigest(hasher crypto.HasherI, arg string, hash bool) (crypto.Digest, error) {
	if hash {
		return hasher.Sum([]byte(arg)), nil
	}
	return crypto.NewDigestFromString(arg)
}

// parseLeaf() converts a <key>=<value> argument into a leaf
func parseLeaf(hasher crypto.HasherI, arg string, hash bool) (leaf smt.Leaf, err error) {
	k, v, found := strings.Cut(arg, "=")
	if !found {
		return leaf, fmt.Errorf("expected <key>=<value>, got %q", arg)
	}
	if leaf.Key, err = parseDigest(hasher, k, hash); err != nil {
		return
	}
	leaf.Value, err = parseDigest(hasher, v, hash)
	return
}

func argToDigest(arg string) crypto.Digest {
	d, err := parseDigest(argHasher(), arg, hashKeys)
	if err != nil {
		l.Fatal(err.Error())
	}
	return d
}

func argsToDigests(args []string) (digests []crypto.Digest) {
	for _, arg := range args {
		digests = append(digests, argToDigest(arg))
	}
	return
}

func argToLeaf(arg string) smt.Leaf {
	leaf, err := parseLeaf(argHasher(), arg, hashKeys)
	if err != nil {
		l.Fatal(err.Error())
	}
	return leaf
}

func argHasher() crypto.HasherI {
	hasher, err := smt.NewHasher(config.TreeConfig)
	if err != nil {
		l.Fatal(err.Error())
	}
	return hasher
}
