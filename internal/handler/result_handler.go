package handler

import (
	"net/http"

	"depth-test/internal/db"
	"depth-test/internal/model"
	"depth-test/internal/service"

	"github.com/gin-gonic/gin"
)

type ResultHandler struct {
	svc *service.ServiceContext
}

func NewResultHandler(svc *service.ServiceContext) *ResultHandler {
	return &ResultHandler{svc: svc}
}

// ListResults 全部样本结果（下游评估从这里拿产物清单）
func (h *ResultHandler) ListResults(c *gin.Context) {
	recs, err := h.svc.Store().ListResults()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": recs, "total": len(recs)})
}

// GetResult 单个样本的元数据
func (h *ResultHandler) GetResult(c *gin.Context) {
	var rec model.TrialRecord
	if err := db.DB.Where("sample_id = ?", c.Param("sample_id")).First(&rec).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "样本结果不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": rec})
}

// GetArtifact 直接下载产物图片
func (h *ResultHandler) GetArtifact(c *gin.Context) {
	var rec model.TrialRecord
	err := db.DB.Where("sample_id = ? AND outcome = ?", c.Param("sample_id"), model.TrialSucceeded).
		First(&rec).Error
	if err != nil || rec.ArtifactPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "产物不存在"})
		return
	}
	c.File(rec.ArtifactPath)
}
