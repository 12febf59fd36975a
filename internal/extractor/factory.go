package extractor

import "fmt"

const (
	KindBuiltin = "builtin"
	KindCommand = "command"
)

type Config struct {
	Kind    string
	Grid    GridConfig
	Command CommandConfig
}

// New builds the extractor selected by cfg.Kind.
func New(cfg Config) (Extractor, error) {
	switch cfg.Kind {
	case "", KindBuiltin:
		return NewGridExtractor(cfg.Grid), nil
	case KindCommand:
		ext, err := NewCommandExtractor(cfg.Command)
		if err != nil {
			return nil, err
		}
		return ext, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
