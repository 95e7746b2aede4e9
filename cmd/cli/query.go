package cli

import (
	"slices"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "query a remote tree over its rpc",
}

var queryVersion = uint64(0)

func init() {
	queryCmd.PersistentFlags().Uint64Var(&queryVersion, "version", 0, "committed version for the query, 0 is latest")
	queryCmd.AddCommand(qVersionsCmd)
	queryCmd.AddCommand(qRootCmd)
	queryCmd.AddCommand(qGetCmd)
	queryCmd.AddCommand(qProveCmd)
	queryCmd.AddCommand(qVerifyCmd)
}

var (
	qVersionsCmd = &cobra.Command{
		Use:   "versions",
		Short: "query every known version",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Versions())
		},
	}

	qRootCmd = &cobra.Command{
		Use:   "root --version=1",
		Short: "query the root digest of a committed version",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Root(versionArg()))
		},
	}

	qGetCmd = &cobra.Command{
		Use:   "get <key> [<key>...] --version=1",
		Short: "query the values of keys",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Get(versionArg(), argsToDigests(args)))
		},
	}

	qProveCmd = &cobra.Command{
		Use:   "prove <key> [<key>...] --version=1",
		Short: "query a proof of keys together with the leaves it authenticates",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Prove(versionArg(), argsToDigests(args)))
		},
	}

	qVerifyCmd = &cobra.Command{
		Use:   "verify <root> <proof> <key>=<value> [<key>=<value>...]",
		Short: "ask the rpc to check a hex encoded proof against a root",
		Args:  cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			root, err := crypto.NewDigestFromString(args[0])
			if err != nil {
				l.Fatal(err.Error())
			}
			leaves := make([]smt.Leaf, 0, len(args)-2)
			for _, arg := range args[2:] {
				leaves = append(leaves, argToLeaf(arg))
			}
			slices.SortFunc(leaves, func(a, b smt.Leaf) int { return a.Key.Compare(b.Key) })
			writeToConsole(client.Verify(root, nil, args[1], leaves))
		},
	}
)

// versionArg() maps the --version flag to the rpc form where nil is the latest
func versionArg() *lib.VersionID {
	if queryVersion == 0 {
		return nil
	}
	v := lib.VersionID(queryVersion)
	return &v
}
