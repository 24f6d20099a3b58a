package notifykit

import (
	"os"

	"github.com/rs/zerolog"
)

// debugChannel is the structured diagnostic sink described in spec §6:
// emitted only when Engine was constructed with WithDebug(true). It
// replaces the teacher's per-OS flag-name dumper (internal/debug_*.go)
// with structured fields, since raw backend masks are already
// translated into typed Events/RawEvents long before anything reaches
// this channel.
type debugChannel struct {
	log     zerolog.Logger
	enabled bool
}

func newDebugChannel(enabled bool) *debugChannel {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).With().Timestamp().Logger()
	if !enabled {
		log = log.Level(zerolog.Disabled)
	}
	return &debugChannel{log: log, enabled: enabled}
}

func (d *debugChannel) rawEvent(re RawEvent) {
	if !d.enabled {
		return
	}
	d.log.Debug().Str("kind", re.Kind.String()).Str("path", re.Path).
		Str("old_path", re.OldPath).Str("new_path", re.NewPath).
		Uint32("cookie", re.Cookie).Msg("raw event")
}

func (d *debugChannel) batchFlushed(b Batch) {
	if !d.enabled {
		return
	}
	d.log.Debug().Int("events", len(b)).Msg("batch flushed")
}

func (d *debugChannel) queueOverflow(dropped int64) {
	if !d.enabled {
		return
	}
	d.log.Warn().Int64("dropped_batches", dropped).Msg("batch queue overflow, dropping oldest")
}

func (d *debugChannel) backendOverflow(root string) {
	if !d.enabled {
		return
	}
	d.log.Warn().Str("root", root).Msg("backend overflow, invalidating pending entries under root")
}

func (d *debugChannel) backendError(detail string, err error) {
	if !d.enabled {
		return
	}
	d.log.Error().Str("detail", detail).Err(err).Msg("backend error")
}

func (d *debugChannel) watch(path string, recursive bool) {
	if !d.enabled {
		return
	}
	d.log.Debug().Str("path", path).Bool("recursive", recursive).Msg("watch registered")
}

func (d *debugChannel) unwatch(path string) {
	if !d.enabled {
		return
	}
	d.log.Debug().Str("path", path).Msg("watch removed")
}
