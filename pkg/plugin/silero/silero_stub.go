//go:build !silero

package silero

import (
	"fmt"

	"github.com/chriscow/callpipe-go/pkg/plugin"
)

func newSileroVAD(cfg map[string]any) (any, error) {
	return nil, fmt.Errorf("silero VAD requires the silero build tag (go build -tags silero); use the energy detector otherwise")
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindVAD,
		Name:        "silero",
		Factory:     newSileroVAD,
		Description: "Silero VAD (disabled; build with -tags silero)",
		Downloader:  &ModelDownloader{},
	})
}
