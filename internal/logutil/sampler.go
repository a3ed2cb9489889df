package logutil

import (
	"github.com/rs/zerolog"
)

// LevelSampler keeps events at or above Level. SetLevel installs it on the
// global logger.
type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}
