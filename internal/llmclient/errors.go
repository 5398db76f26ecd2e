package llmclient

import "github.com/kairoai/agentrt/pkg/models"

// errBackendUnavailable classifies connection-level failures talking to the
// inference backend.
func errBackendUnavailable(err error) error {
	return models.Wrap(models.KindBackendUnavailable, "model backend unavailable", err)
}

// errBackendProtocol classifies malformed/unexpected backend responses.
func errBackendProtocol(err error) error {
	return models.Wrap(models.KindInternal, "model backend returned a malformed response", err)
}
