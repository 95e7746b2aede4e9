package cli

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/canopy-network/vsmt/cmd/rpc"
	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/canopy-network/vsmt/store"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var rootCmd = &cobra.Command{
	Use:   "vsmt",
	Short: "a versioned sparse merkle tree with compact multi-proofs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config = InitializeDataDirectory(DataDir, lib.NewNullLogger())
		l = lib.NewLogger(lib.LoggerConfig{Level: config.GetLogLevel(), Module: "vsmt"}, config.DataDirPath)
		if RPCURL == "" {
			RPCURL = "http://localhost:" + config.RPCPort
		}
		client = rpc.NewClient(RPCURL)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(rpc.SoftwareVersion)
	},
}

var (
	client, config, l = &rpc.Client{}, lib.Config{}, lib.LoggerI(nil)
	DataDir, RPCURL   = "", ""
	// hashKeys treats key and value arguments as strings to be hashed instead of hex digests
	hashKeys = false
)

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rootHashCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(verifyBatchCmd)
	rootCmd.PersistentFlags().StringVar(&DataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
	rootCmd.PersistentFlags().StringVar(&RPCURL, "rpc-url", "", "url of the query rpc, defaults to the local rpc port")
	rootCmd.PersistentFlags().BoolVar(&hashKeys, "hash", false, "hash key and value arguments instead of parsing them as hex digests")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "serve the committed versions over the query rpc",
	Run: func(cmd *cobra.Command, args []string) {
		Start()
	},
}

// Start() serves the query rpc and the metrics until a kill signal is received
func Start() {
	// initialize the metrics server
	metrics := lib.NewMetricsServer(config.MetricsConfig, l)
	// open the versioned store
	db, hasher := openStore(metrics)
	// initialize the rpc server
	rpcServer := rpc.NewServer(db, hasher, config, metrics, l)
	// start the metrics server
	metrics.Start()
	// start the rpc server
	rpcServer.Start()
	// block until a kill signal is received
	waitForKill()
	// gracefully stop the rpc server
	rpcServer.Stop()
	// gracefully stop the metrics server
	metrics.Stop()
	// close the store
	if err := db.Close(); err != nil {
		l.Error(err.Error())
	}
	os.Exit(0)
}

// openStore() opens the configured store together with the configured hash function
func openStore(metrics *lib.Metrics) (*store.Store, crypto.HasherI) {
	hasher, err := smt.NewHasher(config.TreeConfig)
	if err != nil {
		l.Fatal(err.Error())
	}
	db, err := store.New(config.StoreConfig, metrics, l)
	if err != nil {
		l.Fatal(err.Error())
	}
	if err = db.BindHasher(hasher.Name()); err != nil {
		l.Fatal(err.Error())
	}
	return db, hasher
}

// waitForKill() blocks until a kill signal is received
func waitForKill() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGABRT)
	// block until kill signal is received
	s := <-stop
	l.Infof("Exit command %s received", s)
}

// InitializeDataDirectory() populates the data directory with a default configuration if missing
func InitializeDataDirectory(dataDirPath string, log lib.LoggerI) (c lib.Config) {
	// make the data dir if missing
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		log.Fatal(err.Error())
	}
	// make the config.json file if missing
	configFilePath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.ConfigFilePath)
		defaults := lib.DefaultConfig()
		defaults.DataDirPath = dataDirPath
		if err = defaults.WriteToFile(configFilePath); err != nil {
			log.Fatal(err.Error())
		}
	}
	// load the config object
	c, err := lib.NewConfigFromFile(configFilePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	// set the data-directory
	c.DataDirPath = dataDirPath
	return
}

func writeToConsole(a any, err error) {
	if err != nil {
		l.Fatal(err.Error())
	}
	switch a.(type) {
	case int, uint32, uint64, lib.VersionID:
		p := message.NewPrinter(language.English)
		if _, err := p.Printf("%d\n", a); err != nil {
			l.Fatal(err.Error())
		}
	case string, *string:
		fmt.Println(a)
	default:
		s, err := lib.MarshalJSONIndentString(a)
		if err != nil {
			l.Fatal(err.Error())
		}
		fmt.Println(s)
	}
}
