package cli

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/canopy-network/smt/store"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "set a key to a value; an empty value deletes the key",
		Args:  cobra.ExactArgs(2),
		RunE: withTree(func(cmd *cobra.Command, args []string, tree *store.SMT[string], db store.StoreI) lib.ErrorI {
			root, err := tree.Update(ParseKey(args[0]), args[1])
			if err != nil {
				return err
			}
			if err = db.SetLatestRoot(root); err != nil {
				return err
			}
			return writeToConsole(cmd, rootOutput{Root: root})
		}),
	}

	getCmd = &cobra.Command{
		Use:   "get KEY",
		Short: "get the value of a key at the latest root",
		Args:  cobra.ExactArgs(1),
		RunE: withTree(func(cmd *cobra.Command, args []string, tree *store.SMT[string], _ store.StoreI) lib.ErrorI {
			key := ParseKey(args[0])
			value, err := tree.Get(key)
			if err != nil {
				return err
			}
			return writeToConsole(cmd, getOutput{Key: key, Value: value, Present: value != ""})
		}),
	}

	rootHashCmd = &cobra.Command{
		Use:   "root",
		Short: "print the latest root",
		RunE: withTree(func(cmd *cobra.Command, _ []string, tree *store.SMT[string], _ store.StoreI) lib.ErrorI {
			return writeToConsole(cmd, rootOutput{Root: tree.Root()})
		}),
	}

	proveCmd = &cobra.Command{
		Use:   "prove KEY...",
		Short: "generate a batched proof for one or more keys at the latest root",
		Args:  cobra.MinimumNArgs(1),
		RunE: withTree(func(cmd *cobra.Command, args []string, tree *store.SMT[string], _ store.StoreI) lib.ErrorI {
			keys := make([]crypto.Digest, len(args))
			for i, a := range args {
				keys[i] = ParseKey(a)
			}
			proof, err := tree.Prove(keys)
			if err != nil {
				return err
			}
			compiled, err := proof.Compile()
			if err != nil {
				return err
			}
			return writeToConsole(cmd, proveOutput{
				Root:     tree.Root(),
				Proof:    proof,
				Bytes:    hex.EncodeToString(proof.Bytes()),
				Compiled: hex.EncodeToString(compiled.Bytes()),
			})
		}),
	}

	verifyCmd = &cobra.Command{
		Use:   "verify ROOT PROOF KEY=VALUE...",
		Short: "verify claims against a root using the hex proof bytes printed by prove",
		Long:  "verify claims against a root using the hex proof bytes printed by prove; KEY= claims the key is absent",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, valid, err := verifyClaims(args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			return writeToConsole(cmd, verifyOutput{Root: root, Valid: valid})
		},
	}
)

// withTree() opens the tree for a command and always closes the store, whatever the command returns
func withTree(run func(cmd *cobra.Command, args []string, tree *store.SMT[string], db store.StoreI) lib.ErrorI) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		tree, db, err := openTree(nil)
		if err != nil {
			return err
		}
		err = run(cmd, args, tree, db)
		if e := db.Close(); e != nil && err == nil {
			err = e
		}
		return err
	}
}

// verifyClaims() decodes the root and proof arguments and checks the claims with the configured hasher
func verifyClaims(rootArg, proofArg string, claims []string) (root crypto.Digest, valid bool, err lib.ErrorI) {
	hasher, err := config.HasherFactory()
	if err != nil {
		return
	}
	root, e := crypto.DigestFromHex(rootArg)
	if e != nil {
		return root, false, lib.ErrInvalidDigest(e)
	}
	bz, e := hex.DecodeString(proofArg)
	if e != nil {
		return root, false, lib.ErrInvalidArgument(e)
	}
	proof, err := store.NewProofFromBytes(bz)
	if err != nil {
		return
	}
	entries, err := ParseEntries(claims)
	if err != nil {
		return
	}
	valid, err = proof.Verify(hasher, root, entries)
	return
}

type rootOutput struct {
	Root crypto.Digest `json:"root"`
}

type getOutput struct {
	Key     crypto.Digest `json:"key"`
	Value   string        `json:"value"`
	Present bool          `json:"present"`
}

type proveOutput struct {
	Root     crypto.Digest `json:"root"`
	Proof    *store.Proof  `json:"proof"`
	Bytes    string        `json:"bytes"`
	Compiled string        `json:"compiled"`
}

type verifyOutput struct {
	Root  crypto.Digest `json:"root"`
	Valid bool          `json:"valid"`
}

// ParseKey() accepts a 64 character hex digest, otherwise the argument is hashed into a key
func ParseKey(s string) crypto.Digest {
	if d, err := crypto.DigestFromHex(s); err == nil {
		return d
	}
	return crypto.Sum(crypto.NewBlake2bHasherWithPersonalization(lib.WordValuePersonalization), []byte(s))
}

// ParseEntries() converts KEY=VALUE arguments into proof entries
func ParseEntries(args []string) ([]store.Entry, lib.ErrorI) {
	codec, entries := lib.NewWordCodec(), make([]store.Entry, 0, len(args))
	for _, a := range args {
		key, value, found := strings.Cut(a, "=")
		if !found {
			return nil, lib.ErrInvalidArgument(fmt.Errorf("entry %q is not KEY=VALUE", a))
		}
		entries = append(entries, store.Entry{Key: ParseKey(key), ValueDigest: codec.ToDigest(value)})
	}
	return entries, nil
}
