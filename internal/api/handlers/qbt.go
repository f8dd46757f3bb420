package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/faketorrent"
	"github.com/ddlarr/ddlarr/internal/models"
)

// Version strings reported to WebUI clients. Radarr and Sonarr gate
// features on these, so they track a real qBittorrent release.
const (
	qbtVersion    = "v4.6.3"
	qbtAPIVersion = "2.9.3"
)

const (
	sessionCookie = "SID"
	sessionTTL    = time.Hour
)

// QueueManager drives download jobs on behalf of WebUI requests
type QueueManager interface {
	AddJob(url, name, category, savePath string, size int64) (*models.DownloadJob, error)
	Schedule(ctx context.Context) error
	Pause(hash string) error
	Resume(hash string) error
	Delete(hash string, deleteFiles bool) error
}

// QbtHandler emulates the slice of the qBittorrent WebUI API that
// Radarr and Sonarr drive. Protocol quirks are load-bearing: auth
// answers with the literal "Ok." or "Fails." tokens, and action
// endpoints always answer 200.
type QbtHandler struct {
	db          *models.Database
	queue       QueueManager
	username    string
	password    string
	downloadDir string
	maxActive   int
	logger      *logrus.Logger

	mu         sync.Mutex
	sessions   map[string]time.Time
	categories map[string]string
}

// NewQbtHandler creates a new WebUI handler. Empty credentials disable
// the login check.
func NewQbtHandler(db *models.Database, queue QueueManager, username, password, downloadDir string, maxActive int, logger *logrus.Logger) *QbtHandler {
	return &QbtHandler{
		db:          db,
		queue:       queue,
		username:    username,
		password:    password,
		downloadDir: downloadDir,
		maxActive:   maxActive,
		logger:      logger,
		sessions:    make(map[string]time.Time),
		categories:  make(map[string]string),
	}
}

// Register mounts the WebUI routes onto the /api/v2 subrouter
func (h *QbtHandler) Register(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/auth/logout", h.logout).Methods(http.MethodGet, http.MethodPost)

	app := router.PathPrefix("/app").Subrouter()
	app.Use(h.requireAuth)
	app.HandleFunc("/version", h.version).Methods(http.MethodGet)
	app.HandleFunc("/webapiVersion", h.webapiVersion).Methods(http.MethodGet)
	app.HandleFunc("/buildInfo", h.buildInfo).Methods(http.MethodGet)
	app.HandleFunc("/preferences", h.preferences).Methods(http.MethodGet)

	torrents := router.PathPrefix("/torrents").Subrouter()
	torrents.Use(h.requireAuth)
	torrents.HandleFunc("/info", h.torrentsInfo).Methods(http.MethodGet)
	torrents.HandleFunc("/properties", h.torrentProperties).Methods(http.MethodGet)
	torrents.HandleFunc("/files", h.torrentFiles).Methods(http.MethodGet)
	torrents.HandleFunc("/add", h.torrentsAdd).Methods(http.MethodPost)
	torrents.HandleFunc("/pause", h.torrentsPause).Methods(http.MethodPost)
	torrents.HandleFunc("/resume", h.torrentsResume).Methods(http.MethodPost)
	torrents.HandleFunc("/delete", h.torrentsDelete).Methods(http.MethodPost)
	torrents.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)
	torrents.HandleFunc("/createCategory", h.createCategory).Methods(http.MethodPost)
	torrents.HandleFunc("/removeCategories", h.removeCategories).Methods(http.MethodPost)
	torrents.HandleFunc("/setCategory", h.setCategory).Methods(http.MethodPost)
}

// Auth

func (h *QbtHandler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeToken(w, "Fails.")
		return
	}
	if h.username != "" {
		if r.FormValue("username") != h.username || r.FormValue("password") != h.password {
			h.logger.WithField("remote_addr", r.RemoteAddr).Warn("WebUI login rejected")
			writeToken(w, "Fails.")
			return
		}
	}

	sid := newSessionID()
	h.mu.Lock()
	h.sessions[sid] = time.Now().Add(sessionTTL)
	h.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
	})
	writeToken(w, "Ok.")
}

func (h *QbtHandler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		h.mu.Lock()
		delete(h.sessions, cookie.Value)
		h.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeToken(w, "Ok.")
}

func (h *QbtHandler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *QbtHandler) authorized(r *http.Request) bool {
	if h.username == "" {
		return true
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	expiry, ok := h.sessions[cookie.Value]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(h.sessions, cookie.Value)
		return false
	}
	return true
}

func newSessionID() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// App info

func (h *QbtHandler) version(w http.ResponseWriter, r *http.Request) {
	writeToken(w, qbtVersion)
}

func (h *QbtHandler) webapiVersion(w http.ResponseWriter, r *http.Request) {
	writeToken(w, qbtAPIVersion)
}

func (h *QbtHandler) buildInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"qt":         "6.6.1",
		"libtorrent": "2.0.9.0",
		"boost":      "1.83.0",
		"openssl":    "3.1.4",
		"zlib":       "1.3",
		"bitness":    64,
	})
}

func (h *QbtHandler) preferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"save_path":                h.downloadDir,
		"temp_path":                h.downloadDir,
		"temp_path_enabled":        false,
		"create_subfolder_enabled": false,
		"auto_tmm_enabled":         false,
		"torrent_content_layout":   "Original",
		"start_paused_enabled":     false,
		"queueing_enabled":         true,
		"max_active_downloads":     h.maxActive,
		"max_active_torrents":      h.maxActive,
		"max_active_uploads":       0,
		"max_ratio_enabled":        false,
		"max_ratio":                -1,
		"dht":                      false,
		"pex":                      false,
		"lsd":                      false,
	})
}

// Torrent list

type torrentInfo struct {
	AddedOn      int64   `json:"added_on"`
	AmountLeft   int64   `json:"amount_left"`
	AutoTMM      bool    `json:"auto_tmm"`
	Category     string  `json:"category"`
	CompletionOn int64   `json:"completion_on"`
	ContentPath  string  `json:"content_path"`
	DLSpeed      int64   `json:"dlspeed"`
	Downloaded   int64   `json:"downloaded"`
	ETA          int64   `json:"eta"`
	ForceStart   bool    `json:"force_start"`
	Hash         string  `json:"hash"`
	Name         string  `json:"name"`
	NumLeechs    int     `json:"num_leechs"`
	NumSeeds     int     `json:"num_seeds"`
	Priority     int     `json:"priority"`
	Progress     float64 `json:"progress"`
	Ratio        float64 `json:"ratio"`
	SavePath     string  `json:"save_path"`
	Size         int64   `json:"size"`
	State        string  `json:"state"`
	Tags         string  `json:"tags"`
	TotalSize    int64   `json:"total_size"`
	UPSpeed      int64   `json:"upspeed"`
	Uploaded     int64   `json:"uploaded"`
}

func (h *QbtHandler) torrentsInfo(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.db.GetAllJobs()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list jobs")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	params := r.URL.Query()
	jobs = filterJobs(jobs, params.Get("filter"), params.Get("category"), params.Get("hashes"))
	sortJobs(jobs, params.Get("sort"), params.Get("reverse") == "true")

	if offset := atoiOrZero(params.Get("offset")); offset > 0 {
		if offset >= len(jobs) {
			jobs = nil
		} else {
			jobs = jobs[offset:]
		}
	}
	if limit := atoiOrZero(params.Get("limit")); limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	infos := make([]torrentInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, jobToInfo(job))
	}
	writeJSON(w, infos)
}

func jobToInfo(job *models.DownloadJob) torrentInfo {
	amountLeft := job.TotalSize - job.Downloaded
	if amountLeft < 0 {
		amountLeft = 0
	}
	var completedOn int64
	if job.CompletedAt != nil {
		completedOn = job.CompletedAt.Unix()
	}
	return torrentInfo{
		AddedOn:      job.AddedAt.Unix(),
		AmountLeft:   amountLeft,
		Category:     job.Category,
		CompletionOn: completedOn,
		ContentPath:  filepath.Join(job.SavePath, job.Filename),
		DLSpeed:      job.Speed,
		Downloaded:   job.Downloaded,
		ETA:          job.ETA(),
		Hash:         job.Hash,
		Name:         job.Name,
		Priority:     job.Priority,
		Progress:     job.Progress(),
		SavePath:     job.SavePath,
		Size:         job.TotalSize,
		State:        qbtState(job.State),
		TotalSize:    job.TotalSize,
	}
}

// qbtState maps job states onto the qBittorrent state enum. Completed
// jobs report pausedUP: a finished torrent that is not seeding, which
// is what triggers the client-side import.
func qbtState(state models.JobState) string {
	switch state {
	case models.JobStateQueued:
		return "queuedDL"
	case models.JobStateChecking:
		return "checkingDL"
	case models.JobStateDownloading:
		return "downloading"
	case models.JobStatePaused:
		return "pausedDL"
	case models.JobStateCompleted:
		return "pausedUP"
	case models.JobStateError:
		return "error"
	case models.JobStateStalled:
		return "stalledDL"
	}
	return "unknown"
}

func filterJobs(jobs []*models.DownloadJob, filter, category, hashes string) []*models.DownloadJob {
	var wantHashes map[string]bool
	if hashes != "" {
		wantHashes = make(map[string]bool)
		for _, hash := range strings.Split(hashes, "|") {
			wantHashes[hash] = true
		}
	}

	out := jobs[:0]
	for _, job := range jobs {
		if wantHashes != nil && !wantHashes[job.Hash] {
			continue
		}
		if category != "" && job.Category != category {
			continue
		}
		if !stateMatchesFilter(job.State, filter) {
			continue
		}
		out = append(out, job)
	}
	return out
}

func stateMatchesFilter(state models.JobState, filter string) bool {
	switch filter {
	case "", "all":
		return true
	case "downloading":
		return state == models.JobStateQueued || state == models.JobStateChecking ||
			state == models.JobStateDownloading || state == models.JobStateStalled
	case "completed":
		return state == models.JobStateCompleted
	case "paused":
		return state == models.JobStatePaused
	case "active":
		return state.Active()
	case "errored":
		return state == models.JobStateError
	case "stalled":
		return state == models.JobStateStalled
	case "queued":
		return state == models.JobStateQueued
	}
	return true
}

func sortJobs(jobs []*models.DownloadJob, field string, reverse bool) {
	less := func(a, b *models.DownloadJob) bool { return a.AddedAt.Before(b.AddedAt) }
	switch field {
	case "name":
		less = func(a, b *models.DownloadJob) bool { return a.Name < b.Name }
	case "size", "total_size":
		less = func(a, b *models.DownloadJob) bool { return a.TotalSize < b.TotalSize }
	case "progress":
		less = func(a, b *models.DownloadJob) bool { return a.Progress() < b.Progress() }
	case "priority":
		less = func(a, b *models.DownloadJob) bool { return a.Priority < b.Priority }
	case "state":
		less = func(a, b *models.DownloadJob) bool { return a.State < b.State }
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		if reverse {
			return less(jobs[j], jobs[i])
		}
		return less(jobs[i], jobs[j])
	})
}

// Single-torrent detail

func (h *QbtHandler) torrentProperties(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobFromHashParam(w, r)
	if !ok {
		return
	}

	var completionDate int64 = -1
	if job.CompletedAt != nil {
		completionDate = job.CompletedAt.Unix()
	}
	var elapsed int64
	if job.StartedAt != nil {
		elapsed = int64(time.Since(*job.StartedAt).Seconds())
	}

	// The placeholder declares a single piece spanning the whole file
	pieceSize := job.TotalSize
	if pieceSize <= 0 {
		pieceSize = faketorrent.FakeLength
	}

	writeJSON(w, map[string]any{
		"save_path":        job.SavePath,
		"creation_date":    job.AddedAt.Unix(),
		"addition_date":    job.AddedAt.Unix(),
		"completion_date":  completionDate,
		"comment":          job.OriginalURL,
		"created_by":       "ddlarr",
		"piece_size":       pieceSize,
		"pieces_num":       1,
		"pieces_have":      piecesHave(job),
		"total_size":       job.TotalSize,
		"total_downloaded": job.Downloaded,
		"total_uploaded":   0,
		"total_wasted":     0,
		"dl_speed":         job.Speed,
		"up_speed":         0,
		"dl_limit":         -1,
		"up_limit":         -1,
		"eta":              job.ETA(),
		"time_elapsed":     elapsed,
		"nb_connections":   0,
		"share_ratio":      0,
		"seeds":            0,
		"seeds_total":      0,
		"peers":            0,
		"peers_total":      0,
	})
}

func piecesHave(job *models.DownloadJob) int {
	if job.State == models.JobStateCompleted {
		return 1
	}
	return 0
}

func (h *QbtHandler) torrentFiles(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobFromHashParam(w, r)
	if !ok {
		return
	}

	name := job.Filename
	if name == "" {
		name = job.Name
	}
	writeJSON(w, []map[string]any{
		{
			"index":        0,
			"name":         name,
			"size":         job.TotalSize,
			"progress":     job.Progress(),
			"priority":     1,
			"is_seed":      job.State == models.JobStateCompleted,
			"piece_range":  []int{0, 0},
			"availability": 1.0,
		},
	})
}

func (h *QbtHandler) jobFromHashParam(w http.ResponseWriter, r *http.Request) (*models.DownloadJob, bool) {
	hash := r.URL.Query().Get("hash")
	job, err := h.db.GetJobByHash(hash)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return nil, false
	}
	return job, true
}

// Add

func (h *QbtHandler) torrentsAdd(w http.ResponseWriter, r *http.Request) {
	category := ""
	savePath := ""
	paused := false
	added := 0

	addOne := func(link, name string, size int64) {
		if link == "" {
			return
		}
		job, err := h.queue.AddJob(link, name, category, savePath, size)
		if err != nil {
			h.logger.WithError(err).WithField("name", name).Error("Failed to queue download")
			return
		}
		if paused {
			if err := h.queue.Pause(job.Hash); err != nil {
				h.logger.WithError(err).Warn("Failed to pause new download")
			}
		}
		added++
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "Fails.", http.StatusUnsupportedMediaType)
			return
		}
		category = r.FormValue("category")
		savePath = h.resolveSavePath(category, r.FormValue("savepath"))
		paused = r.FormValue("paused") == "true"

		for _, header := range r.MultipartForm.File["torrents"] {
			link, name, size, err := decodeUpload(header)
			if err != nil {
				h.logger.WithError(err).WithField("filename", header.Filename).Warn("Rejected invalid placeholder upload")
				continue
			}
			if name == "" {
				name = strings.TrimSuffix(header.Filename, faketorrent.Extension)
			}
			addOne(link, name, size)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Fails.", http.StatusBadRequest)
			return
		}
		category = r.FormValue("category")
		savePath = h.resolveSavePath(category, r.FormValue("savepath"))
		paused = r.FormValue("paused") == "true"
	}

	for _, raw := range strings.Fields(r.FormValue("urls")) {
		link, name, size := parseAddURL(raw)
		addOne(link, name, size)
	}

	if added == 0 {
		http.Error(w, "Fails.", http.StatusUnsupportedMediaType)
		return
	}
	go h.queue.Schedule(context.Background())
	writeToken(w, "Ok.")
}

func decodeUpload(header *multipart.FileHeader) (string, string, int64, error) {
	file, err := header.Open()
	if err != nil {
		return "", "", 0, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, 1<<20))
	if err != nil {
		return "", "", 0, err
	}
	payload, err := faketorrent.Decode(data)
	if err != nil {
		return "", "", 0, err
	}
	return payload.URL, payload.Name, payload.Length, nil
}

// parseAddURL extracts the download link from an added URL. A link to
// this server's own /torrent endpoint carries everything in its query
// string, so no fetch is needed; anything else is taken as the hoster
// link itself.
func parseAddURL(raw string) (string, string, int64) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw, "", 0
	}
	if link := parsed.Query().Get("link"); link != "" {
		size, _ := strconv.ParseInt(parsed.Query().Get("size"), 10, 64)
		return link, parsed.Query().Get("name"), size
	}
	return raw, filepath.Base(parsed.Path), 0
}

func (h *QbtHandler) resolveSavePath(category, savePath string) string {
	if savePath != "" {
		return savePath
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.categories[category]
}

// Bulk actions

func (h *QbtHandler) torrentsPause(w http.ResponseWriter, r *http.Request) {
	h.applyToHashes(w, r, func(hash string) error { return h.queue.Pause(hash) })
}

func (h *QbtHandler) torrentsResume(w http.ResponseWriter, r *http.Request) {
	h.applyToHashes(w, r, func(hash string) error { return h.queue.Resume(hash) })
	go h.queue.Schedule(context.Background())
}

func (h *QbtHandler) torrentsDelete(w http.ResponseWriter, r *http.Request) {
	deleteFiles := r.FormValue("deleteFiles") == "true"
	h.applyToHashes(w, r, func(hash string) error { return h.queue.Delete(hash, deleteFiles) })
}

// applyToHashes runs an action over hashes=a|b|c or hashes=all. The
// response is always "Ok."; per-hash failures only get logged, matching
// the WebUI protocol's fire-and-forget action semantics.
func (h *QbtHandler) applyToHashes(w http.ResponseWriter, r *http.Request, action func(hash string) error) {
	if err := r.ParseForm(); err != nil {
		writeToken(w, "Ok.")
		return
	}

	raw := r.FormValue("hashes")
	var hashes []string
	if raw == "all" {
		jobs, err := h.db.GetAllJobs()
		if err != nil {
			h.logger.WithError(err).Error("Failed to list jobs")
			writeToken(w, "Ok.")
			return
		}
		for _, job := range jobs {
			hashes = append(hashes, job.Hash)
		}
	} else if raw != "" {
		hashes = strings.Split(raw, "|")
	}

	for _, hash := range hashes {
		if err := action(hash); err != nil {
			h.logger.WithError(err).WithField("hash", hash).Warn("WebUI action failed")
		}
	}
	writeToken(w, "Ok.")
}

// Categories

func (h *QbtHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]map[string]string, len(h.categories))
	for name, path := range h.categories {
		out[name] = map[string]string{"name": name, "savePath": path}
	}
	writeJSON(w, out)
}

func (h *QbtHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		http.Error(w, "Fails.", http.StatusBadRequest)
		return
	}
	savePath := strings.TrimSpace(r.FormValue("savePath"))
	if savePath == "" {
		savePath = filepath.Join(h.downloadDir, category)
	}
	if err := os.MkdirAll(savePath, 0755); err != nil {
		h.logger.WithError(err).WithField("path", savePath).Error("Failed to create category directory")
		http.Error(w, "Fails.", http.StatusConflict)
		return
	}

	h.mu.Lock()
	h.categories[category] = savePath
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"category":  category,
		"save_path": savePath,
	}).Info("Created download category")
	writeToken(w, "Ok.")
}

func (h *QbtHandler) removeCategories(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	for _, category := range strings.Split(r.FormValue("categories"), "\n") {
		delete(h.categories, strings.TrimSpace(category))
	}
	h.mu.Unlock()
	writeToken(w, "Ok.")
}

func (h *QbtHandler) setCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.FormValue("category"))
	if category != "" {
		h.mu.Lock()
		_, known := h.categories[category]
		h.mu.Unlock()
		if !known {
			http.Error(w, "Fails.", http.StatusConflict)
			return
		}
	}

	for _, hash := range strings.Split(r.FormValue("hashes"), "|") {
		job, err := h.db.GetJobByHash(hash)
		if err != nil {
			continue
		}
		job.Category = category
		if err := h.db.UpdateJob(job); err != nil {
			h.logger.WithError(err).WithField("hash", hash).Warn("Failed to update job category")
		}
	}
	writeToken(w, "Ok.")
}

// Helpers

func writeToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(token))
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
