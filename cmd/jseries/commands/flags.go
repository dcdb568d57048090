package commands

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bind ties a flag to a config key so an explicit flag wins over file and
// environment values.
func bind(v *viper.Viper, f *pflag.Flag, key string) {
	if f == nil {
		panic("unknown flag for config key " + key)
	}

	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
