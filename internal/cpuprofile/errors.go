package cpuprofile

import (
	"fmt"

	"github.com/getsentry/cpuprof/internal/errorutil"
)

var (
	ErrUnknownFormat       = fmt.Errorf("%w: profile has neither head nor nodes", errorutil.ErrDataIntegrity)
	ErrNoNodes             = fmt.Errorf("%w: profile has no nodes", errorutil.ErrDataIntegrity)
	ErrNoHitCountOrSamples = fmt.Errorf("%w: neither hitCount nor samples are present in profile", errorutil.ErrDataIntegrity)
	ErrMissingRootChildren = fmt.Errorf("%w: missing children for root", errorutil.ErrDataIntegrity)
	ErrDuplicateNodeID     = fmt.Errorf("%w: duplicate node id", errorutil.ErrDataIntegrity)
	ErrUnknownNode         = fmt.Errorf("%w: reference to an unknown node", errorutil.ErrDataIntegrity)
	ErrCyclicTree          = fmt.Errorf("%w: node reachable through more than one path", errorutil.ErrDataIntegrity)
	ErrDisconnectedTree    = fmt.Errorf("%w: node not reachable from root", errorutil.ErrDataIntegrity)
	ErrTimestampsMismatch  = fmt.Errorf("%w: timestamps do not match samples", errorutil.ErrDataIntegrity)
)
