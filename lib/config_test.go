package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	// calculate expected
	expected := Config{
		MainConfig:    DefaultMainConfig(),
		StoreConfig:   DefaultStoreConfig(),
		TreeConfig:    DefaultTreeConfig(),
		RPCConfig:     DefaultRPCConfig(),
		MetricsConfig: DefaultMetricsConfig(),
	}
	// execute the function call
	got := DefaultConfig()
	// compare got vs expected
	require.Equal(t, expected, got)
	require.Equal(t, int64(64<<20), got.MemTableSize)
	require.Equal(t, BackendPebble, got.Backend)
}

func TestFileConfig(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), ConfigFilePath)
	// define a variable to test upon
	config := DefaultConfig()
	config.Backend = BackendBadger
	config.Hasher = "sha256"
	// write to file
	require.NoError(t, config.WriteToFile(filePath))
	// read from file
	got, err := NewConfigFromFile(filePath)
	require.NoError(t, err)
	require.Equal(t, config, got)
}

func TestFileConfigPartial(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), ConfigFilePath)
	require.NoError(t, os.WriteFile(filePath, []byte(`{"backend":"leveldb","logLevel":"debug"}`), os.ModePerm))
	got, err := NewConfigFromFile(filePath)
	require.NoError(t, err)
	// explicitly set fields are loaded, others keep their defaults
	require.Equal(t, BackendLevelDB, got.Backend)
	require.Equal(t, DebugLevel, got.GetLogLevel())
	require.Equal(t, DefaultRPCConfig(), got.RPCConfig)
	// a missing file is a read error
	_, err = NewConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.True(t, HasCode(err, MainModule, CodeReadFile))
}

func TestGetLogLevel(t *testing.T) {
	tests := map[string]int32{
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"unknown": InfoLevel,
	}
	for in, expected := range tests {
		m := MainConfig{LogLevel: in}
		require.Equal(t, expected, m.GetLogLevel(), in)
	}
}
