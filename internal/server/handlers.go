package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagepress/internal/jsonval"
	"git.home.luguber.info/inful/pagepress/internal/report"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// handleWebhook accepts push notifications. When a secret is configured the
// HMAC signature is mandatory. Pushes to other branches are acknowledged but
// ignored.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.cfg.WebhookSecret != "" {
		if !verifySignature(body, r.Header.Get("X-Hub-Signature-256"), s.cfg.WebhookSecret) {
			slog.Warn("Webhook rejected, bad signature", "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	payload, err := jsonval.Parse(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	ref, _ := payload.GetString("ref")
	want := "refs/heads/" + s.branchFilter()
	if ref != want {
		slog.Debug("Webhook ignored, ref does not match", "ref", ref, "want", want)
		writeJSON(w, http.StatusAccepted, map[string]string{"result": "ignored", "reason": "ref mismatch"})
		return
	}

	runID, err := s.runtime.TriggerRun("push")
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	commit, _ := payload.GetString("after")
	slog.Info("Webhook accepted", "run_id", runID, "ref", ref, "commit", commit)
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "queued", "run_id": runID})
}

// handleManualTrigger starts a run without a webhook event.
func (s *Server) handleManualTrigger(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runtime.TriggerRun("manual")
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "queued", "run_id": runID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":      "idle",
		"queue_depth": s.runtime.QueueDepth(),
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
	}
	if active := s.runtime.ActiveRun(); active != nil {
		status["status"] = "running"
		status["active_run"] = active
	}
	if last := s.runtime.History(); len(last) > 0 {
		status["last_run"] = last[0]
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.runtime.History()})
}

// handleReportPage renders a finished run's report as HTML.
func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	runReport := s.runtime.RunReport(runID)
	if runReport == nil {
		writeError(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}

	html, err := report.HTML(runReport)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>Run %s</title></head><body>\n%s\n</body></html>\n", runID, html)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks a GitHub-style sha256 HMAC header.
func verifySignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
