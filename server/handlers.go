package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/heartrisk/inference"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

type errorBody struct {
	Detail string `json:"detail"`
}

const modelNotLoaded = "Model not loaded"

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Heart Disease Prediction API", "status": "active"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Health())
}

func (s *Server) modelInfo(c *gin.Context) {
	info, err := s.svc.ModelInfo()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) predict(c *gin.Context) {
	if !s.svc.Ready() {
		s.fail(c, errors.NewModelUnavailableError("predict"))
		return
	}
	var req inference.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.NewValidationError("body", "invalid JSON: "+err.Error(), nil))
		return
	}
	rec, err := req.Record()
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.svc.Predict(c.Request.Context(), rec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// fail maps service errors onto status codes: an unready model is a server
// error, bad input and prediction failures are client errors.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	var (
		unavailable *errors.ModelUnavailableError
		validation  *errors.ValidationError
		prediction  *errors.PredictionError
	)
	switch {
	case errors.As(err, &unavailable):
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Detail: modelNotLoaded})
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Detail: validation.Error()})
	case errors.As(err, &prediction):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Detail: prediction.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Detail: "Internal server error"})
	}
}
