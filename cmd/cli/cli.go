package cli

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/metrics"
	"github.com/canopy-network/smt/store"
	"github.com/spf13/cobra"
)

const SoftwareVersion = "v0.1.0"

var rootCmd = &cobra.Command{
	Use:   "smt",
	Short: "a sparse Merkle tree with batched inclusion and non-inclusion proofs",
	// commands return their errors so deferred cleanup runs; Execute() reports them
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config = InitializeDataDirectory(dataDir, lib.NewDefaultLogger())
		l = lib.NewLogger(lib.LoggerConfig{Level: config.GetLogLevel(), NoColor: config.NoColor}, config.DataDirPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(SoftwareVersion)
	},
}

var (
	config, l = lib.Config{}, lib.LoggerI(nil)
	dataDir   = ""
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rootHashCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if l != nil {
			l.Fatal(err.Error())
		}
		log.Fatal(err)
	}
}

// InitializeDataDirectory() creates the data directory and a default config file if missing, then loads the config
func InitializeDataDirectory(dataDirPath string, log lib.LoggerI) lib.Config {
	// make the data dir if missing
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		log.Fatal(err.Error())
	}
	// make the config.json file if missing
	configFilePath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.ConfigFilePath)
		c := lib.DefaultConfig()
		c.DataDirPath = dataDirPath
		if err = c.WriteToFile(configFilePath); err != nil {
			log.Fatal(err.Error())
		}
	}
	c, err := lib.NewConfigFromFile(configFilePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	// the flag wins over a stale path in the file
	c.DataDirPath = dataDirPath
	return c
}

// openTree() opens the configured store and points a word tree at the latest saved root
// on error the store is already closed
func openTree(m *metrics.Metrics) (*store.SMT[string], store.StoreI, lib.ErrorI) {
	hasher, err := config.HasherFactory()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.New(config, m, l)
	if err != nil {
		return nil, nil, err
	}
	tree := store.NewSMT[string](db, hasher, lib.NewWordCodec(), l, m)
	root, err := db.LatestRoot()
	if err == nil {
		err = tree.SetRoot(root)
	}
	if err != nil {
		if e := db.Close(); e != nil {
			l.Error(e.Error())
		}
		return nil, nil, err
	}
	return tree, db, nil
}

// writeToConsole() prints v as indented JSON to the command's output
func writeToConsole(cmd *cobra.Command, v any) lib.ErrorI {
	bz, err := lib.MarshalJSONIndent(v)
	if err != nil {
		return err
	}
	if _, e := fmt.Fprintln(cmd.OutOrStdout(), string(bz)); e != nil {
		return lib.ErrWriteFile(e)
	}
	return nil
}
