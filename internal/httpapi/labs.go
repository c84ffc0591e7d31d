// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flomentum/vitalscore/internal/apierr"
)

func registerLabRoutes(rg *gin.RouterGroup, deps *Dependencies) {
	rg.POST("/labs/uploads", uploadLabHandler(deps))
	rg.GET("/labs/uploads/:id", getLabJobHandler(deps))
	rg.GET("/labs/uploads/:id/stream", streamLabJobHandler(deps))
}

// uploadLabHandler accepts a multipart file, stages it via the pipeline,
// and kicks off Run off the request path (§5: "Lab uploads run off the
// request path") -- the handler returns as soon as the job is persisted
// in JobPending, before extraction even starts.
func uploadLabHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.PostForm("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user form field required"))
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "file field required", err))
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "could not open uploaded file", err))
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "could not read uploaded file", err))
			return
		}

		job, err := deps.Pipeline.Accept(c.Request.Context(), user, data)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		go func(jobId string) {
			ctx := context.Background()
			if err := deps.Pipeline.Run(ctx, jobId); err != nil && deps.Logger != nil {
				deps.Logger.Error("lab pipeline run failed", "job", jobId, "error", err)
			}
		}(job.Id)

		c.JSON(http.StatusAccepted, job)
	}
}

func getLabJobHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := deps.Jobs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

var labStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Job-progress polling only; no cross-origin credentials are carried.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamLabJobHandler upgrades to a websocket and pushes the job's
// steps[] every time it changes, so a client (or cmd/labctl's TUI) gets
// incremental progress instead of polling GET /labs/uploads/:id itself.
// The connection closes once the job reaches a terminal status.
func streamLabJobHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := labStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := c.Param("id")
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		var lastStepCount int
		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
				job, err := deps.Jobs.Get(c.Request.Context(), id)
				if err != nil {
					_ = conn.WriteJSON(gin.H{"error": err.Error()})
					return
				}
				if len(job.Steps) == lastStepCount && !job.Status.IsTerminal() {
					continue
				}
				lastStepCount = len(job.Steps)
				if err := conn.WriteJSON(job); err != nil {
					return
				}
				if job.Status.IsTerminal() {
					return
				}
			}
		}
	}
}
