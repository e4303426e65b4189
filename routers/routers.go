package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/mradamcox/ohmg/dispatch"
	"github.com/mradamcox/ohmg/sessions"
	"github.com/mradamcox/ohmg/views"
)

func MapRouters(r *gin.Engine, engine *sessions.Engine, dispatcher dispatch.Dispatcher) {
	docCtrl := &views.DocumentController{}
	splitCtrl := &views.SplitController{}
	georefCtrl := &views.GeoreferenceController{}
	sessionCtrl := &views.SessionController{Engine: engine, Dispatcher: dispatcher}

	mapRouter := r.Group("/map")
	{
		mapRouter.POST("/documents", docCtrl.CreateDocument)
		mapRouter.GET("/documents", docCtrl.ListDocuments)
		mapRouter.GET("/documents/:id", docCtrl.GetDocument)
	}
	{
		mapRouter.POST("/split/preview", splitCtrl.PreviewDivisions)
		mapRouter.POST("/split/segmentation", splitCtrl.SaveSegmentation)
	}
	{
		mapRouter.POST("/georeference/gcps", georefCtrl.SaveGCPs)
		mapRouter.POST("/georeference/preview", georefCtrl.Preview)
	}
	{
		mapRouter.POST("/sessions", sessionCtrl.StartSession)
		mapRouter.GET("/sessions", sessionCtrl.ListSessions)
		mapRouter.GET("/sessions/:id", sessionCtrl.GetSession)
		mapRouter.POST("/sessions/:id/data", sessionCtrl.SetSessionData)
		mapRouter.POST("/sessions/:id/run", sessionCtrl.RunSession)
		mapRouter.POST("/sessions/:id/undo", sessionCtrl.UndoSession)
		mapRouter.POST("/sessions/:id/redo", sessionCtrl.RedoSession)
		mapRouter.POST("/expired-sessions/sweep", sessionCtrl.DeleteExpired)
	}
}
