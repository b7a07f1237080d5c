package handlers

import "github.com/gin-gonic/gin"

// Routes bundles the API handlers mounted under /api/v1.
type Routes struct {
	Projects *ProjectsHandler
	Timeline *TimelineHandler
	Assets   *AssetsHandler
	Exports  *ExportsHandler
	Events   *EventsHandler
}

// Register mounts every authenticated route on api. Nil handlers are skipped.
func (r Routes) Register(api gin.IRouter) {
	if h := r.Projects; h != nil {
		api.GET("/projects", h.ListProjects)
		api.POST("/projects", h.CreateProject)
		api.GET("/projects/:project_id", h.GetProject)
		api.PATCH("/projects/:project_id", h.UpdateProject)
		api.DELETE("/projects/:project_id", h.DeleteProject)
	}

	if h := r.Timeline; h != nil {
		api.GET("/projects/:project_id/tracks", h.GetTimeline)
		api.POST("/projects/:project_id/tracks", h.CreateTrack)
		api.PATCH("/projects/:project_id/tracks/:track_id", h.UpdateTrack)
		api.DELETE("/projects/:project_id/tracks/:track_id", h.DeleteTrack)
		api.POST("/projects/:project_id/tracks/:track_id/move", h.MoveTrack)
		api.POST("/projects/:project_id/tracks/:track_id/items", h.CreateItem)
		api.PATCH("/projects/:project_id/items/:item_id", h.UpdateItem)
		api.DELETE("/projects/:project_id/items/:item_id", h.DeleteItem)
		api.GET("/projects/:project_id/scene", h.Scene)
		api.GET("/projects/:project_id/active", h.ActiveItems)
	}

	if h := r.Assets; h != nil {
		api.GET("/workspaces/:workspace_id/assets", h.ListAssets)
		api.POST("/workspaces/:workspace_id/assets", h.UploadAsset)
		api.DELETE("/assets/:asset_id", h.DeleteAsset)
	}

	if h := r.Exports; h != nil {
		api.POST("/projects/:project_id/exports", h.CreateExport)
		api.GET("/projects/:project_id/exports/edl", h.EDL)
		api.GET("/exports/:export_id", h.GetExport)
	}

	if h := r.Events; h != nil {
		api.GET("/projects/:project_id/events", h.Stream)
	}
}
