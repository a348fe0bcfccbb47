package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL    string
	In        string
	Out       string
	Errors    string
	StateFile string
	LogLevel  string
	Topic0Map map[string]string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("in", "./data/events.jsonl")
		v.SetDefault("out", "./data/typed_events.jsonl")
		v.SetDefault("errors", "./data/decode_errors.jsonl")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		RPCURL:    v.GetString("rpc"),
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		Errors:    v.GetString("errors"),
		StateFile: v.GetString("state-file"),
		LogLevel:  v.GetString("log-level"),
		Topic0Map: getStringMap(v, "topic0-map"),
	}, nil
}
