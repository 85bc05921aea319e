package handler

import (
	"net/http"
	"sync"

	"depth-test/internal/db"
	"depth-test/internal/model"
	"depth-test/internal/service"

	"github.com/gin-gonic/gin"
)

type RunHandler struct {
	svc *service.ServiceContext
	// UI 会话是独占资源，同一时刻只允许一个批次在跑
	mu sync.Mutex
}

func NewRunHandler(svc *service.ServiceContext) *RunHandler {
	return &RunHandler{svc: svc}
}

// ListRuns 列出历史批次
func (h *RunHandler) ListRuns(c *gin.Context) {
	var runs []model.BatchRun
	if err := db.DB.Order("id DESC").Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// GetRun 单个批次详情
func (h *RunHandler) GetRun(c *gin.Context) {
	var run model.BatchRun
	if err := db.DB.First(&run, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "批次不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// GetRunTrials 批次内全部样本记录
func (h *RunHandler) GetRunTrials(c *gin.Context) {
	var trials []model.TrialRecord
	if err := db.DB.Where("run_id = ?", c.Param("id")).Order("sample_id").Find(&trials).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trials": trials, "total": len(trials)})
}

// GetRunLogs 批次内尝试过程日志（调试用）
func (h *RunHandler) GetRunLogs(c *gin.Context) {
	var logs []model.TrialLog
	query := db.DB.Where("run_id = ?", c.Param("id"))
	if sid := c.Query("sample_id"); sid != "" {
		query = query.Where("sample_id = ?", sid)
	}
	if err := query.Order("id").Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": len(logs)})
}

// GetRunStats 批次统计
func (h *RunHandler) GetRunStats(c *gin.Context) {
	var run model.BatchRun
	if err := db.DB.First(&run, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "批次不存在"})
		return
	}
	stats, err := service.ComputeRunStats(run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "stats": stats})
}

// TriggerRun 远程触发一个批次（阻塞到跑完；并发触发返回 409）
func (h *RunHandler) TriggerRun(c *gin.Context) {
	if !h.mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "已有批次在运行中"})
		return
	}
	defer h.mu.Unlock()

	var req service.BatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Batch.Run(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
