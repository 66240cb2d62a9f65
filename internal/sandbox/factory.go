package sandbox

// New builds a backend for the configured kind. Construction only
// validates and wires; no container or network call happens until the
// backend's Create. Configuration problems surface here as
// *UnsupportedBackendError or *ResourceLimitError, never as runtime
// errors later.
func New(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindLocal:
		return NewDockerBackend(cfg)
	case KindRemote:
		return NewRemoteBackend(cfg)
	default:
		return nil, &UnsupportedBackendError{Kind: cfg.Kind}
	}
}
