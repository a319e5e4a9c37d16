package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/middleware"
	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
)

func actorFromContext(c *gin.Context) models.Actor {
	return middleware.ActorFrom(c)
}

func intParam(c *gin.Context, name string) (int, error) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be an integer")
	}
	return value, nil
}
