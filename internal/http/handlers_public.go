package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shipkit/platform/internal/service/billing"
	"github.com/shipkit/platform/internal/service/content"
	"github.com/shipkit/platform/internal/service/feedback"
	"github.com/shipkit/platform/internal/service/waitlist"
)

const maxWebhookBody = 1 << 20

func (r *Router) handleBillingWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	signature := req.Header.Get("Stripe-Signature")
	if err := r.billing.VerifySignature(signature, body); err != nil {
		r.logger.Warn("billing webhook rejected", "error", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	result, err := r.billing.HandleEvent(req.Context(), body)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleBillingPayments(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for billing payments", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if info.Guest {
		writeError(w, http.StatusForbidden, "guests have no billing history")
		return
	}
	// History is scoped to the verified email on the session. API keys carry
	// no email, so they cannot read billing history.
	if info.APIKey || info.Email == "" {
		writeError(w, http.StatusForbidden, "billing history requires a user session")
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	payments, err := r.billing.History(req.Context(), info.Email, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (r *Router) handleRSS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	feed := content.Feed{
		Title:       r.siteName,
		SiteURL:     r.siteURL,
		Description: r.siteName + " updates",
	}
	out, err := content.RenderRSS(feed, r.content.Published())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeXML(w, http.StatusOK, out)
}

func (r *Router) handleSitemapIndex(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	out, err := content.RenderSitemapIndex(r.siteURL, r.hasBlog, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeXML(w, http.StatusOK, out)
}

func (r *Router) handleSitemapSection(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	section := strings.TrimPrefix(req.URL.Path, "/sitemap/")
	section = strings.TrimSuffix(section, ".xml")
	if section == "" || strings.Contains(section, "/") {
		r.notFound(w)
		return
	}
	out, ok, err := content.RenderSitemapSection(r.siteURL, section, r.hasBlog, r.content.Published())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		r.notFound(w)
		return
	}
	writeXML(w, http.StatusOK, out)
}

func (r *Router) handlePosts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	posts := r.content.Published()
	views := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		views = append(views, map[string]any{
			"slug":         post.Slug,
			"title":        post.Title,
			"description":  post.Description,
			"author":       post.Author,
			"published_at": post.PublishedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handlePost(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	slug := strings.TrimPrefix(req.URL.Path, "/blog/posts/")
	if slug == "" || strings.Contains(slug, "/") {
		r.notFound(w)
		return
	}
	post, err := r.content.Get(slug)
	if err != nil || post.Draft {
		r.notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":         post.Slug,
		"title":        post.Title,
		"description":  post.Description,
		"author":       post.Author,
		"published_at": post.PublishedAt,
		"html":         post.HTML,
	})
}

// optionalAuth resolves the bearer token when present without failing the
// request. Public endpoints use it to attribute submissions.
func (r *Router) optionalAuth(req *http.Request) authInfo {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		return authInfo{}
	}
	user, claims, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		return authInfo{}
	}
	return authInfo{UserID: user.ID, TeamID: claims.TeamID, Guest: user.Guest}
}

func (r *Router) handleFeedback(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	info := r.optionalAuth(req)
	entry, err := r.feedback.Submit(req.Context(), info.UserID, payload.Content, payload.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (r *Router) handleFeedbackSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/feedback/")
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 1 && parts[0] == "entries":
		r.handleFeedbackList(w, req)
	case len(parts) == 2 && parts[1] == "status":
		r.handleFeedbackStatus(w, req, parts[0])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleFeedbackList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	entries, err := r.feedback.List(req.Context(), req.URL.Query().Get("status"), limit, offset)
	if err != nil {
		if errors.Is(err, feedback.ErrBadStatus) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (r *Router) handleFeedbackStatus(w http.ResponseWriter, req *http.Request, id string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.feedback.SetStatus(req.Context(), id, payload.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "status updated")
}

func (r *Router) handleWaitlist(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email  string `json:"email"`
		Name   string `json:"name"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := r.waitlist.Join(req.Context(), payload.Email, payload.Name, payload.Source)
	if err != nil {
		if errors.Is(err, waitlist.ErrInvalidEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (r *Router) handleWaitlistCount(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	count, err := r.waitlist.Count(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (r *Router) handleWaitlistSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/waitlist/")
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 1 && parts[0] == "entries":
		r.handleWaitlistList(w, req)
	case len(parts) == 2 && parts[1] == "notified":
		r.handleWaitlistNotified(w, req, parts[0])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleWaitlistList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	entries, err := r.waitlist.List(req.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (r *Router) handleWaitlistNotified(w http.ResponseWriter, req *http.Request, id string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.waitlist.MarkNotified(req.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "marked notified")
}
