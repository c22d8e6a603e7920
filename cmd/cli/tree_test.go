package cli

import (
	"bytes"
	"testing"

	"github.com/canopy-network/smt/demo"
	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	hexKey := demo.WordKey(2)
	require.Equal(t, hexKey, ParseKey(hexKey.String()))
	require.Equal(t, hexKey, ParseKey("0x"+hexKey.String()))
	// anything else is hashed
	require.Equal(t, crypto.Sum(crypto.NewBlake2bHasherWithPersonalization(lib.WordValuePersonalization), []byte("fox")), ParseKey("fox"))
}

func TestParseEntries(t *testing.T) {
	entries, err := ParseEntries([]string{"fox=brown", "dog="})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, lib.NewWordCodec().ToDigest("brown"), entries[0].ValueDigest)
	require.True(t, entries[1].ValueDigest.IsZero())
	_, err = ParseEntries([]string{"fox"})
	require.True(t, lib.HasCode(err, lib.MainModule, lib.CodeInvalidArgument))
}

func TestInitializeDataDirectory(t *testing.T) {
	dir := t.TempDir()
	c := InitializeDataDirectory(dir, lib.NewNullLogger())
	require.Equal(t, dir, c.DataDirPath)
	require.Equal(t, lib.DefaultStoreConfig().Backend, c.Backend)
	// a second call loads the written file
	c.Backend = lib.MemoryBackend
	require.NoError(t, c.WriteToFile(dir+"/"+lib.ConfigFilePath))
	require.Equal(t, lib.MemoryBackend, InitializeDataDirectory(dir, lib.NewNullLogger()).Backend)
}

// execute() runs the root command with args against dir and returns what it printed
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOutput(out)
	rootCmd.SetArgs(append([]string{"--data-dir", dir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetProveVerify(t *testing.T) {
	dir := t.TempDir()
	// the default badger backend must be closed between commands for the next one to open it
	out, err := execute(t, dir, "set", "fox", "brown")
	require.NoError(t, err)
	set := rootOutput{}
	require.NoError(t, lib.UnmarshalJSON([]byte(out), &set))
	require.False(t, set.Root.IsZero())
	_, err = execute(t, dir, "set", "dog", "lazy")
	require.NoError(t, err)
	_, err = execute(t, dir, "set", "dog", "")
	require.NoError(t, err)
	// the root survives reopening
	out, err = execute(t, dir, "root")
	require.NoError(t, err)
	latest := rootOutput{}
	require.NoError(t, lib.UnmarshalJSON([]byte(out), &latest))
	require.Equal(t, set.Root, latest.Root)
	out, err = execute(t, dir, "get", "fox")
	require.NoError(t, err)
	got := getOutput{}
	require.NoError(t, lib.UnmarshalJSON([]byte(out), &got))
	require.Equal(t, getOutput{Key: ParseKey("fox"), Value: "brown", Present: true}, got)
	// prove the present and the deleted key together
	out, err = execute(t, dir, "prove", "fox", "dog")
	require.NoError(t, err)
	proved := struct {
		Root  crypto.Digest `json:"root"`
		Bytes string        `json:"bytes"`
	}{}
	require.NoError(t, lib.UnmarshalJSON([]byte(out), &proved))
	require.Equal(t, set.Root, proved.Root)
	tests := []struct {
		name   string
		claims []string
		valid  bool
	}{
		{name: "honest claims", claims: []string{"fox=brown", "dog="}, valid: true},
		{name: "wrong value", claims: []string{"fox=red", "dog="}},
		{name: "deleted key claimed present", claims: []string{"fox=brown", "dog=lazy"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out, err := execute(t, dir, append([]string{"verify", proved.Root.String(), proved.Bytes}, test.claims...)...)
			require.NoError(t, err)
			verified := verifyOutput{}
			require.NoError(t, lib.UnmarshalJSON([]byte(out), &verified))
			require.Equal(t, test.valid, verified.Valid)
		})
	}
}

func TestCommandErrorsAreReturned(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "set", "fox", "brown")
	require.NoError(t, err)
	_, err = execute(t, dir, "verify", "zz", "00", "fox=brown")
	require.True(t, lib.HasCode(err, lib.MainModule, lib.CodeInvalidDigest), "got %v", err)
	_, err = execute(t, dir, "verify", ParseKey("fox").String(), "ff", "fox=brown")
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeDecodeProof), "got %v", err)
	_, err = execute(t, dir, "verify", ParseKey("fox").String(), "00", "fox")
	require.Error(t, err)
	// the store is still usable after failed commands
	out, err := execute(t, dir, "get", "fox")
	require.NoError(t, err)
	require.Contains(t, out, "brown")
}
