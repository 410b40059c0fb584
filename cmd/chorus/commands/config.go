package commands

import (
	"github.com/mosaicnetworks/chorus/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Chorus config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Chorus: *config.NewDefaultConfig(),
	}
}
