package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docintake/common"
	"docintake/deduplication"

	"github.com/gin-gonic/gin"
)

// DeduplicationController exposes the duplicate detector over multipart forms.
type DeduplicationController struct {
	detector *deduplication.Detector
	log      *common.Logger
	maxBytes int64
}

func NewDeduplicationController(d *deduplication.Detector, log *common.Logger, maxUploadBytes int64) *DeduplicationController {
	return &DeduplicationController{detector: d, log: log, maxBytes: maxUploadBytes}
}

// RegisterDeduplicationRoutes registers deduplication service endpoints.
func RegisterDeduplicationRoutes(r gin.IRouter, dc *DeduplicationController) {
	g := r.Group("/deduplication")
	g.POST("/check", dc.handleCheck)
	g.POST("/fingerprints", dc.handleStore)
	g.DELETE("/owners/:ownerId", dc.handleClearOwner)
	g.GET("/owners/:ownerId/count", dc.handleCount)
	g.GET("/stats", dc.handleStats)
}

// upload is a parsed multipart check or store request.
type upload struct {
	ownerID    string
	file       deduplication.File
	fields     deduplication.Fields
	confidence float64
}

// handleCheck compares an upload against the owner's history
// POST /deduplication/check
func (dc *DeduplicationController) handleCheck(c *gin.Context) {
	up, err := dc.parseUpload(c, false)
	if err != nil {
		respondError(c, dc.log, err)
		return
	}

	result := dc.detector.CheckDuplicate(c.Request.Context(), up.file, up.fields, up.ownerID)
	c.JSON(http.StatusOK, result)
}

// handleStore records an accepted upload
// POST /deduplication/fingerprints
func (dc *DeduplicationController) handleStore(c *gin.Context) {
	up, err := dc.parseUpload(c, true)
	if err != nil {
		respondError(c, dc.log, err)
		return
	}

	fp, err := dc.detector.StoreFingerprint(c.Request.Context(), up.file, up.fields, up.ownerID, up.confidence)
	if err != nil {
		respondError(c, dc.log, err)
		return
	}
	c.JSON(http.StatusCreated, fp)
}

// DELETE /deduplication/owners/:ownerId
func (dc *DeduplicationController) handleClearOwner(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("ownerId"))
	if err := dc.detector.ClearOwner(c.Request.Context(), owner); err != nil {
		respondError(c, dc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Fingerprints cleared", "ownerId": owner})
}

// GET /deduplication/owners/:ownerId/count
func (dc *DeduplicationController) handleCount(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("ownerId"))
	n, err := dc.detector.OwnerCount(c.Request.Context(), owner)
	if err != nil {
		respondError(c, dc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ownerId": owner, "count": n})
}

// GET /deduplication/stats
func (dc *DeduplicationController) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":  dc.detector.Stats(),
		"config": dc.detector.Config(),
	})
}

func (dc *DeduplicationController) parseUpload(c *gin.Context, withConfidence bool) (upload, error) {
	verr := &common.ValidationError{}
	if dc.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, dc.maxBytes)
	}

	var up upload
	up.ownerID = strings.TrimSpace(c.PostForm("ownerId"))
	if up.ownerID == "" {
		verr.Add("ownerId", "is required")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		verr.Add("file", "is required")
	} else {
		f, err := readFormFile(fh)
		if err != nil {
			verr.Add("file", err.Error())
		}
		up.file = f
	}

	up.fields.Merchant = c.PostForm("merchant")
	up.fields.Date = c.PostForm("date")
	up.fields.Description = c.PostForm("description")
	if raw := strings.TrimSpace(c.PostForm("amount")); raw != "" {
		amt, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			verr.Add("amount", "must be a number")
		}
		up.fields.Amount = amt
	}

	if withConfidence {
		up.confidence = 1
		if raw := strings.TrimSpace(c.PostForm("confidence")); raw != "" {
			conf, err := strconv.ParseFloat(raw, 64)
			if err != nil || conf < 0 || conf > 1 {
				verr.Add("confidence", "must be a number between 0 and 1")
			}
			up.confidence = conf
		}
	}

	return up, verr.OrNil()
}

func readFormFile(fh *multipart.FileHeader) (deduplication.File, error) {
	rc, err := fh.Open()
	if err != nil {
		return deduplication.File{}, errors.New("could not be opened")
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return deduplication.File{}, errors.New("could not be read")
	}
	if len(content) == 0 {
		return deduplication.File{}, errors.New("must not be empty")
	}
	return deduplication.File{
		Name:         fh.Filename,
		Size:         fh.Size,
		LastModified: time.Now().UTC(),
		Content:      content,
	}, nil
}
