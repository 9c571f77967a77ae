package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"git.home.luguber.info/inful/docspipe/internal/event"
	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// webhookSecretHeader carries the shared secret configured via
// daemon.secret_env in the pipeline definition.
const webhookSecretHeader = "X-Docspipe-Token"

// webhookPayload is the JSON body accepted by POST /webhook.
type webhookPayload struct {
	Event    string `json:"event"`
	Branch   string `json:"branch,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Commit   string `json:"commit,omitempty"`
	PRNumber int    `json:"pr_number,omitempty"`
	RepoURL  string `json:"repo_url,omitempty"`
}

func (d *Daemon) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	evType, err := event.Parse(payload.Event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ev := event.Event{
		Type:     evType,
		Branch:   payload.Branch,
		Ref:      payload.Ref,
		Commit:   payload.Commit,
		PRNumber: payload.PRNumber,
		RepoURL:  payload.RepoURL,
	}

	if !d.currentConfig().Triggers.Matches(ev) {
		slog.Info("Webhook event does not match triggers", logfields.Event(ev.String()))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ignored\n"))
		return
	}
	if err := d.Enqueue(ev); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("queued\n"))
}

// handleDispatch triggers a manual run, defaulting to the main branch.
func (d *Daemon) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cfg := d.currentConfig()
	ev := event.Event{Type: event.Dispatch, Branch: cfg.MainBranch}
	if branch := r.URL.Query().Get("branch"); branch != "" {
		ev.Branch = branch
	}
	if err := d.Enqueue(ev); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("queued\n"))
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

// handleStatus returns the most recent runs from the history store.
func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := d.hist.RecentRuns(r.Context(), 20)
	if err != nil {
		slog.Error("Failed to query run history", logfields.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"pipeline": d.currentConfig().Name,
		"pending":  len(d.queue),
		"runs":     runs,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode status response", logfields.Error(err))
	}
}

// authorized checks the shared webhook secret when one is configured.
// Without daemon.secret_env every request is accepted.
func (d *Daemon) authorized(r *http.Request) bool {
	cfg := d.currentConfig()
	if cfg.Daemon == nil || cfg.Daemon.SecretEnv == "" {
		return true
	}
	secret := os.Getenv(cfg.Daemon.SecretEnv)
	if secret == "" {
		slog.Warn("Webhook secret env is empty, rejecting request",
			slog.String("secret_env", cfg.Daemon.SecretEnv))
		return false
	}
	got := r.Header.Get(webhookSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
