package dice

import "go.uber.org/zap"

// Logged wraps a Source and logs every draw at debug level so a resolution
// can be audited against its recorded seed.
type Logged struct {
	src    Source
	logger *zap.Logger
}

// NewLogged creates a Logged source.
//
// Precondition: src and logger must be non-nil.
func NewLogged(src Source, logger *zap.Logger) *Logged {
	return &Logged{src: src, logger: logger}
}

// Intn implements Source.
func (l *Logged) Intn(n int) int {
	v := l.src.Intn(n)
	l.logger.Debug("rng draw", zap.Int("n", n), zap.Int("value", v))
	return v
}

// Float64 implements Source.
func (l *Logged) Float64() float64 {
	v := l.src.Float64()
	l.logger.Debug("rng draw", zap.Float64("value", v))
	return v
}
