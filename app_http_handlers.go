package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"papertrail-manager/papertrail"
)

// setupRouter creates the gin router with all API routes
func setupRouter(app *App) *gin.Engine {
	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/status", app.statusHandler)
		api.POST("/refresh", app.refreshHandler)
		api.GET("/rate-limits", app.rateLimitsHandler)
		api.GET("/usage", app.usageHandler)

		api.GET("/systems", app.listSystemsHandler)
		api.POST("/systems", app.registerSystemHandler)
		api.GET("/systems/:id", app.getSystemHandler)
		api.PUT("/systems/:id", app.updateSystemHandler)
		api.DELETE("/systems/:id", app.removeSystemHandler)
		api.POST("/systems/:id/groups/:group_id", app.joinGroupHandler)
		api.DELETE("/systems/:id/groups/:group_id", app.leaveGroupHandler)

		api.GET("/groups", app.listGroupsHandler)
		api.POST("/groups", app.createGroupHandler)
		api.PUT("/groups/:id", app.updateGroupHandler)
		api.DELETE("/groups/:id", app.deleteGroupHandler)

		api.GET("/destinations", app.listDestinationsHandler)

		api.GET("/archives", app.listArchivesHandler)
		api.POST("/archives/:filename/download", app.submitDownloadJobHandler)

		api.GET("/search", app.searchHandler)

		// Download jobs
		api.GET("/jobs/downloads", app.getAllJobsHandler)
		api.GET("/jobs/downloads/:job_id", app.getJobStatusHandler)
		api.POST("/jobs/downloads/:job_id/cancel", app.cancelJobHandler)

		// Local db actions
		api.GET("/downloads", app.getDownloadHistoryHandler)

		api.GET("/settings", getSettingsHandler)
		api.PATCH("/settings", updateSettingsHandler)
	}

	return router
}

// respondError maps library errors to HTTP status codes
func respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	var apiErr *papertrail.APIError
	switch {
	case errors.Is(err, papertrail.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, papertrail.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, papertrail.ErrAlreadyDownloading), errors.Is(err, errQueueFull):
		status = http.StatusConflict
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %v", msg, err)
	}
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return v, true
}

func (app *App) statusHandler(c *gin.Context) {
	pt := app.Papertrail
	resp := StatusResponse{
		Loaded:           pt.IsLoaded(),
		ArchivesFetched:  optionalTime(pt.Archives.LastFetched()),
		SystemsFetched:   optionalTime(pt.Systems.LastFetched()),
		GroupsFetched:    optionalTime(pt.Groups.LastFetched()),
		UsageFetched:     optionalTime(pt.Usage.LastFetched()),
		PendingDownloads: jobStore.countActive(),
	}
	if snapshot, err := GetLatestSnapshot(app.Database); err == nil && snapshot != nil {
		resp.LatestSnapshotAt = optionalTime(snapshot.CreatedAt)
	}
	if n, err := CountVerifiedDownloads(app.Database); err == nil {
		resp.DownloadedArchives = n
	}
	c.JSON(http.StatusOK, resp)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (app *App) refreshHandler(c *gin.Context) {
	queued, err := app.refreshInventory(c.Request.Context())
	if err != nil {
		respondError(c, "Error refreshing inventory", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued_downloads": queued})
}

func (app *App) rateLimitsHandler(c *gin.Context) {
	limits, ok := app.Papertrail.Client().RateLimits()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No rate limit information yet"})
		return
	}
	c.JSON(http.StatusOK, limits)
}

func (app *App) usageHandler(c *gin.Context) {
	usage := app.Papertrail.Usage
	if !usage.IsLoaded() {
		if err := usage.Load(c.Request.Context()); err != nil {
			respondError(c, "Error fetching usage", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"last_fetched": usage.LastFetched(),
		"usage":        usage.Data(),
	})
}

// Section for systems

func (app *App) listSystemsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Papertrail.Systems.All())
}

func (app *App) getSystemHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	system, err := app.Papertrail.Systems.ByID(id)
	if err != nil {
		respondError(c, "Error fetching system", err)
		return
	}
	if c.Query("reload") == "true" {
		system, err = system.Reload(c.Request.Context())
		if err != nil {
			respondError(c, "Error reloading system", err)
			return
		}
	}
	c.JSON(http.StatusOK, system)
}

func (app *App) registerSystemHandler(c *gin.Context) {
	var req RegisterSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	system, err := app.Papertrail.Systems.Register(c.Request.Context(), papertrail.Registration{
		Name:            req.Name,
		HostName:        req.HostName,
		IPAddress:       req.IPAddress,
		DestinationPort: req.DestinationPort,
		DestinationID:   req.DestinationID,
		Description:     req.Description,
		AutoDelete:      req.AutoDelete,
	})
	if err != nil {
		respondError(c, "Error registering system", err)
		return
	}
	c.JSON(http.StatusCreated, system)
}

func (app *App) updateSystemHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req UpdateSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	system, err := app.Papertrail.Systems.ByID(id)
	if err != nil {
		respondError(c, "Error fetching system", err)
		return
	}
	updated, err := system.Update(c.Request.Context(), papertrail.SystemUpdate{
		Name:        req.Name,
		IPAddress:   req.IPAddress,
		HostName:    req.HostName,
		Description: req.Description,
		AutoDelete:  req.AutoDelete,
	})
	if err != nil {
		respondError(c, "Error updating system", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (app *App) removeSystemHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	system, err := app.Papertrail.Systems.ByID(id)
	if err != nil {
		respondError(c, "Error fetching system", err)
		return
	}
	if err := app.Papertrail.Systems.Remove(c.Request.Context(), system); err != nil {
		respondError(c, "Error removing system", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (app *App) joinGroupHandler(c *gin.Context) {
	app.membershipHandler(c, true)
}

func (app *App) leaveGroupHandler(c *gin.Context) {
	app.membershipHandler(c, false)
}

func (app *App) membershipHandler(c *gin.Context, join bool) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	groupID, ok := intParam(c, "group_id")
	if !ok {
		return
	}
	system, err := app.Papertrail.Systems.ByID(id)
	if err != nil {
		respondError(c, "Error fetching system", err)
		return
	}
	if join {
		err = app.Papertrail.Systems.JoinGroup(c.Request.Context(), system, groupID)
	} else {
		err = app.Papertrail.Systems.LeaveGroup(c.Request.Context(), system, groupID)
	}
	if err != nil {
		respondError(c, "Error changing group membership", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Section for groups

func (app *App) listGroupsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Papertrail.Groups.All())
}

func (app *App) createGroupHandler(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	group, err := app.Papertrail.Groups.Create(c.Request.Context(), req.Name, req.SystemWildcard, req.SystemIDs)
	if err != nil {
		respondError(c, "Error creating group", err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (app *App) updateGroupHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	group, err := app.Papertrail.Groups.ByID(id)
	if err != nil {
		respondError(c, "Error fetching group", err)
		return
	}
	updated, err := group.Update(c.Request.Context(), papertrail.GroupUpdate{
		Name:           req.Name,
		SystemWildcard: req.SystemWildcard,
	})
	if err != nil {
		respondError(c, "Error updating group", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (app *App) deleteGroupHandler(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := app.Papertrail.Groups.DeleteByID(c.Request.Context(), id); err != nil {
		respondError(c, "Error deleting group", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (app *App) listDestinationsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Papertrail.Destinations.All())
}

// Section for archives and downloads

func (app *App) listArchivesHandler(c *gin.Context) {
	downloaded, err := DownloadedFileNames(app.Database)
	if err != nil {
		respondError(c, "Error reading download history", err)
		return
	}
	archives := app.Papertrail.Archives.All()
	views := make([]ArchiveView, 0, len(archives))
	for _, a := range archives {
		path, done := downloaded[a.FileName]
		views = append(views, ArchiveView{
			FileName:           a.FileName,
			StartTime:          a.StartTime,
			EndTime:            a.EndTime,
			FormattedStartTime: a.FormattedStartTime,
			FormattedDuration:  a.FormattedDuration,
			FileSize:           a.FileSize,
			Downloaded:         done,
			DownloadPath:       path,
		})
	}
	c.JSON(http.StatusOK, views)
}

func (app *App) submitDownloadJobHandler(c *gin.Context) {
	var req DownloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
	}
	overwrite := currentSettings().Overwrite
	if req.Overwrite != nil {
		overwrite = *req.Overwrite
	}

	job, err := enqueueDownload(app, c.Param("filename"), overwrite)
	if err != nil {
		respondError(c, "Error queueing download", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

func (app *App) getJobStatusHandler(c *gin.Context) {
	job, exists := jobStore.getJob(c.Param("job_id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (app *App) getAllJobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, jobStore.GetAllJobs())
}

func (app *App) cancelJobHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, exists := jobStore.getJob(jobID); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if !cancelJob(jobID) {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": "cancelling"})
}

func (app *App) getDownloadHistoryHandler(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	records, err := GetArchiveDownloads(app.Database, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve download history"})
		log.Errorf("Failed to retrieve download history: %v", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// searchHandler handles GET /api/search?q=...&system_id=...&group_id=...&min_time=...&max_time=...
func (app *App) searchHandler(c *gin.Context) {
	var q papertrail.SearchQuery
	q.Query = c.Query("q")
	q.MaxID = c.Query("max_id")
	q.MinID = c.Query("min_id")

	for name, dst := range map[string]*int{"system_id": &q.SystemID, "group_id": &q.GroupID} {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
				return
			}
			*dst = n
		}
	}
	for name, dst := range map[string]*time.Time{"min_time": &q.MinTime, "max_time": &q.MaxTime} {
		if v := c.Query(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + ", expected RFC 3339"})
				return
			}
			*dst = t
		}
	}

	result, err := app.Papertrail.Client().Search(c.Request.Context(), q)
	if err != nil {
		respondError(c, "Error searching events", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Section for settings

func getSettingsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, currentSettings())
}

func updateSettingsHandler(c *gin.Context) {
	var req SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	updated, err := applySettingsUpdate(req)
	if err != nil {
		var invalid errInvalidSetting
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		log.Errorf("Failed to save settings: %v", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
