//go:build !whisper

package local

import "errors"

func newWhisperEngine(Config) (Engine, error) {
	return nil, errors.New("built without whisper support (build with -tags whisper) and no command configured")
}
