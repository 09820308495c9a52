package commands

import (
	"github.com/mosaicnetworks/swirl/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Swirl config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Swirl: *config.NewDefaultConfig(),
	}
}
