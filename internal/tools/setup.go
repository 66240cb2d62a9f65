package tools

import "github.com/hkuds/runbox/internal/sandbox"

// HostConfig carries the credentials host-side tools need. Sandbox tools
// never see it; they are constructed with only the session.
type HostConfig struct {
	BraveAPIKey      string
	MaxSearchResults int
	BrowseMaxChars   int
}

// DefaultRegistry wires up the built-in tool set for one run. The
// enabled list, when non-empty, restricts which tools the model can see
// and call.
func DefaultRegistry(session *sandbox.Session, host HostConfig, enabled []string) *Registry {
	r := NewRegistry()

	r.MustRegister(NewShellTool(session))
	r.MustRegister(NewPythonTool(session))
	r.MustRegister(NewFileReadTool(session))
	r.MustRegister(NewFileWriteTool(session))
	r.MustRegister(NewWebBrowseTool(session, host.BrowseMaxChars))

	r.MustRegister(NewWebSearchTool(host.BraveAPIKey, host.MaxSearchResults))
	r.MustRegister(NewYouTubeTranscriptTool())

	r.SetEnabled(enabled)
	return r
}
