package logging

// Config tunes the router. Zero values fall back to sane defaults in
// NewRouter.
type Config struct {
	BufferSize      int
	MinimumSeverity Severity
	Fields          map[string]any
}

// DefaultConfig returns the production configuration: info-and-up with
// a 512-event buffer.
func DefaultConfig() Config {
	return Config{
		BufferSize:      512,
		MinimumSeverity: SeverityInfo,
	}
}

// CloneFields copies the ambient field map so the router never aliases
// caller-owned memory.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	copied := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		copied[k] = v
	}
	return copied
}
