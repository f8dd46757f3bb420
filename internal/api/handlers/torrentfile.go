package handlers

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/faketorrent"
)

// TorrentHandler fabricates the placeholder container an automation
// client grabs instead of a real torrent. The container only exists to
// carry the hoster link through the client's torrent pipeline.
type TorrentHandler struct {
	logger *logrus.Logger
}

// NewTorrentHandler creates a new torrent handler
func NewTorrentHandler(logger *logrus.Logger) *TorrentHandler {
	return &TorrentHandler{logger: logger}
}

// ServeHTTP handles GET /torrent?link=&name=&size=
func (h *TorrentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	link := strings.TrimSpace(r.URL.Query().Get("link"))
	if link == "" {
		http.Error(w, "Missing parameter: link", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "download"
	}
	size, _ := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)

	payload := faketorrent.Encode(name, link, size)

	h.logger.WithFields(logrus.Fields{
		"name": name,
		"size": size,
	}).Debug("Serving placeholder file")

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": name + faketorrent.Extension,
	})
	w.Header().Set("Content-Type", "application/x-bittorrent")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Write(payload)
}
