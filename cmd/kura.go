package cmd

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/config"
	"github.com/leftmike/kura/engine"
	"github.com/leftmike/kura/flags"
	"github.com/leftmike/kura/tx/concurrency"
)

var (
	kuraCmd = &cobra.Command{
		Use:               "kura",
		Short:             "A block level transaction engine",
		Long:              "Kura is a transactional block storage engine with write ahead logging.",
		PersistentPreRunE: kuraPreRun,
		PersistentPostRun: kuraPostRun,
	}

	logFile   = "kura.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "kura.hcl"
	noConfig   = false

	cfg  *config.Config
	flgs flags.Flags

	dataDir     = "testdata"
	store       = "disk"
	blockSize   = engine.DefaultBlockSize
	buffers     = engine.DefaultBuffers
	walFile     = engine.DefaultWalFile
	lockTimeout = concurrency.DefaultMaxWait
	pinTimeout  = buffer.DefaultMaxWait
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	cfg = config.NewConfig(kuraCmd.PersistentFlags())

	cfg.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfg.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfg.BoolVar(&logStderr, "log-stderr", logStderr, "log to standard error")

	cfg.StringVar(&configFile, "config-file", configFile, "`file` to load config from").NoConfig()
	cfg.BoolVar(&noConfig, "no-config", noConfig, "don't load config file").NoConfig()

	cfg.StringVar(&dataDir, "data", dataDir, "`directory` containing blocks and log")
	cfg.StringVar(&store, "store", store,
		"storage backend: disk, bbolt, badger, pebble, or btree")
	cfg.IntVar(&blockSize, "block-size", blockSize, "block size in bytes")
	cfg.IntVar(&buffers, "buffers", buffers, "buffer pool size")
	cfg.StringVar(&walFile, "wal-file", walFile, "write ahead log `file`")
	cfg.DurationVar(&lockTimeout, "lock-timeout", lockTimeout, "bound on lock waits")
	cfg.DurationVar(&pinTimeout, "pin-timeout", pinTimeout, "bound on buffer waits")

	flgs = flags.Config(cfg)
}

func Execute() error {
	return kuraCmd.Execute()
}

func engineConfig() engine.Config {
	return engine.Config{
		DataDir:     dataDir,
		Store:       store,
		BlockSize:   blockSize,
		Buffers:     buffers,
		WalFile:     walFile,
		SyncWrites:  flgs.GetFlag(flags.SyncWrites),
		LockTimeout: lockTimeout,
		PinTimeout:  pinTimeout,
	}
}

func kuraPreRun(cmd *cobra.Command, args []string) error {
	if configFile != "" && !noConfig {
		err := cfg.Load(configFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("kura: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("kura: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("kura: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("kura starting")
	return nil
}

func kuraPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("kura done")

	if logWriter != nil {
		logWriter.Close()
	}
}
