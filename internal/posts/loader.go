package posts

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/probe"
)

//go:embed fallback.json
var fallbackJSON []byte

// Fallback returns the embedded default posts shown when no snapshot can be read.
func Fallback() Payload {
	p, err := Decode(fallbackJSON)
	if err != nil {
		panic(fmt.Sprintf("posts: embedded fallback is invalid: %v", err))
	}
	return p
}

// Loader reads the snapshot from a URL or a file path.
type Loader struct {
	source string
	prober *probe.Prober
	logger *zap.Logger
}

func NewLoader(source string, prober *probe.Prober, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: source, prober: prober, logger: logger.Named("posts")}
}

// Source returns where the loader reads from.
func (l *Loader) Source() string { return l.source }

// Load returns the snapshot, or the embedded fallback on any failure.
// fromSnapshot reports which one was returned.
func (l *Loader) Load(ctx context.Context) (payload Payload, fromSnapshot bool) {
	p, err := l.read(ctx)
	if err != nil {
		l.logger.Warn("using fallback posts", zap.String("source", l.source), zap.Error(err))
		return Fallback(), false
	}
	return p, true
}

func (l *Loader) read(ctx context.Context) (Payload, error) {
	if l.source == "" {
		return Payload{}, fmt.Errorf("no snapshot source configured")
	}
	if strings.HasPrefix(l.source, "http://") || strings.HasPrefix(l.source, "https://") {
		res := l.prober.ProbeTimed(ctx, l.source)
		if !res.OK {
			return Payload{}, fmt.Errorf("fetching snapshot: %w", res.Err)
		}
		return Decode(res.Data)
	}
	data, err := os.ReadFile(l.source)
	if err != nil {
		return Payload{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return Decode(data)
}
